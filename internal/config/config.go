// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kmerland/hubdispo-sub001/internal/group"
	"github.com/kmerland/hubdispo-sub001/internal/matcher"
)

// Config holds every knob the consolidation service reads from the
// environment: infrastructure endpoints plus the engine tuning values.
type Config struct {
	//Database (PostgreSQL) config
	DB_USER     string
	DB_PASSWORD string
	DB_NAME     string
	DB_HOST     string
	DB_PORT     string
	//Kafka config
	KAFKA_BROKER       string
	KAFKA_GROUP_TOPIC  string // events we publish
	KAFKA_INTAKE_TOPIC string // shipment.created events we consume
	//RabbitMQ config (notification bridge)
	RABBITMQ_USER     string
	RABBITMQ_PASSWORD string
	RABBITMQ_HOST     string
	RABBITMQ_PORT     string
	RABBITMQ_QUEUE    string
	//Temporal config (departure worker)
	TEMPORAL_HOST_PORT string
	//Engine tuning
	CLOSING_THRESHOLD_PCT  float64
	FULL_THRESHOLD_PCT     float64
	DEPARTURE_LEAD_HOURS   float64
	LANE_MAX_WEIGHT_KG     float64
	LANE_MAX_VOLUME_M3     float64
	LANE_MIN_PARTICIPANTS  int
	LANE_MAX_PARTICIPANTS  int
	DEPARTURE_WINDOW_HOURS float64
	SWEEP_INTERVAL_MINUTES int
}

// LoadConfig reads the environment. Missing engine tuning values fall back
// to the built-in defaults so a bare-bones deployment still behaves.
func LoadConfig() *Config {
	thresholds := group.DefaultThresholds()
	defaults := matcher.DefaultLaneDefaults()
	return &Config{
		DB_USER:     os.Getenv("DB_USER"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_NAME:     os.Getenv("DB_NAME"),

		KAFKA_BROKER:       envOr("KAFKA_BROKER", "localhost:9092"),
		KAFKA_GROUP_TOPIC:  envOr("KAFKA_GROUP_TOPIC", "consolidation.groups"),
		KAFKA_INTAKE_TOPIC: envOr("KAFKA_INTAKE_TOPIC", "shipment.created"),

		RABBITMQ_USER:     os.Getenv("RABBITMQ_USER"),
		RABBITMQ_PASSWORD: os.Getenv("RABBITMQ_PASSWORD"),
		RABBITMQ_HOST:     os.Getenv("RABBITMQ_HOST"),
		RABBITMQ_PORT:     os.Getenv("RABBITMQ_PORT"),
		RABBITMQ_QUEUE:    envOr("RABBITMQ_QUEUE", "group_notifications"),

		TEMPORAL_HOST_PORT: envOr("TEMPORAL_HOST_PORT", "localhost:7233"),

		CLOSING_THRESHOLD_PCT:  envFloat("CLOSING_THRESHOLD_PCT", thresholds.ClosingPct),
		FULL_THRESHOLD_PCT:     envFloat("FULL_THRESHOLD_PCT", thresholds.FullPct),
		DEPARTURE_LEAD_HOURS:   envFloat("DEPARTURE_LEAD_HOURS", thresholds.DepartureLead.Hours()),
		LANE_MAX_WEIGHT_KG:     envFloat("LANE_MAX_WEIGHT_KG", defaults.MaxWeightKg),
		LANE_MAX_VOLUME_M3:     envFloat("LANE_MAX_VOLUME_M3", defaults.MaxVolumeM3),
		LANE_MIN_PARTICIPANTS:  envInt("LANE_MIN_PARTICIPANTS", defaults.MinParticipants),
		LANE_MAX_PARTICIPANTS:  envInt("LANE_MAX_PARTICIPANTS", defaults.MaxParticipants),
		DEPARTURE_WINDOW_HOURS: envFloat("DEPARTURE_WINDOW_HOURS", defaults.DepartureWindow.Hours()),
		SWEEP_INTERVAL_MINUTES: envInt("SWEEP_INTERVAL_MINUTES", 10),
	}
}

// GetDBURL formats the config into a PostgreSQL connection string.
func (c *Config) GetDBURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.DB_USER, c.DB_PASSWORD, c.DB_HOST, c.DB_PORT, c.DB_NAME)
}

// GetRabbitMQURL formats the config into a RabbitMQ connection string.
// Defaults to standard local ports when unset.
func (c *Config) GetRabbitMQURL() string {
	host := c.RABBITMQ_HOST
	if host == "" {
		host = "localhost"
	}
	port := c.RABBITMQ_PORT
	if port == "" {
		port = "5672"
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RABBITMQ_USER, c.RABBITMQ_PASSWORD, host, port)
}

// Thresholds converts the tuning values into the group status thresholds.
func (c *Config) Thresholds() group.Thresholds {
	return group.Thresholds{
		ClosingPct:    c.CLOSING_THRESHOLD_PCT,
		FullPct:       c.FULL_THRESHOLD_PCT,
		DepartureLead: time.Duration(c.DEPARTURE_LEAD_HOURS * float64(time.Hour)),
	}
}

// LaneDefaults converts the tuning values into the matcher's group seed.
func (c *Config) LaneDefaults() matcher.LaneDefaults {
	return matcher.LaneDefaults{
		MaxWeightKg:     c.LANE_MAX_WEIGHT_KG,
		MaxVolumeM3:     c.LANE_MAX_VOLUME_M3,
		MinParticipants: c.LANE_MIN_PARTICIPANTS,
		MaxParticipants: c.LANE_MAX_PARTICIPANTS,
		DepartureWindow: time.Duration(c.DEPARTURE_WINDOW_HOURS * float64(time.Hour)),
	}
}

// SweepInterval is how often the cancellation sweeper wakes up.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SWEEP_INTERVAL_MINUTES) * time.Minute
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
