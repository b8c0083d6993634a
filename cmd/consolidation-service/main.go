// cmd/consolidation-service/main.go

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kmerland/hubdispo-sub001/internal/compatibility"
	"github.com/kmerland/hubdispo-sub001/internal/config"
	"github.com/kmerland/hubdispo-sub001/internal/matcher"
	"github.com/kmerland/hubdispo-sub001/internal/models"
	"github.com/kmerland/hubdispo-sub001/internal/pricing"
	"github.com/kmerland/hubdispo-sub001/internal/registry"
	"github.com/kmerland/hubdispo-sub001/internal/service"
	"github.com/kmerland/hubdispo-sub001/internal/worker"
	pkgkafka "github.com/kmerland/hubdispo-sub001/pkg/kafka"
	pkgrabbit "github.com/kmerland/hubdispo-sub001/pkg/rabbitmq"
)

// shipmentCreatedPayload mirrors what shipment intake publishes. Fields the
// engine does not need are simply not decoded.
type shipmentCreatedPayload struct {
	ID                string  `json:"id"`
	OwnerID           string  `json:"owner_id"`
	OriginHub         string  `json:"origin_hub"`
	Destination       string  `json:"destination"`
	WeightKg          float64 `json:"weight_kg"`
	VolumeM3          float64 `json:"volume_m3"`
	Category          string  `json:"category"`
	ValueCents        int64   `json:"value_cents"`
	Deadline          string  `json:"deadline"` // RFC3339
	AllowIncompatible bool    `json:"allow_incompatible"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg := config.LoadConfig()

	scorer := compatibility.NewScorer()

	// Registry: Postgres when configured, in-memory otherwise. The memory
	// registry is enough for a single replica and for local runs.
	var reg registry.GroupRegistry
	if cfg.DB_HOST != "" {
		pg, err := registry.NewPostgresRegistry(cfg.GetDBURL(), scorer, cfg.Thresholds())
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pg.Close()
		reg = pg
		log.Println("Connected to Postgres")
	} else {
		reg = registry.NewMemoryRegistry()
		log.Println("DB_HOST not set, using in-memory registry")
	}

	// Rates come from the tariff collaborator. Until that integration lands
	// the static table carries the pilot lanes.
	rates := pricing.NewStaticRates(map[string]models.LaneRates{
		"BRU:DE": {IndividualRateCents: 120, ConsolidatedRateCents: 78, DimFactor: 200},
		"BRU:FR": {IndividualRateCents: 110, ConsolidatedRateCents: 74, DimFactor: 200},
		"BRU:NL": {IndividualRateCents: 90, ConsolidatedRateCents: 62, DimFactor: 200},
	}, models.LaneRates{IndividualRateCents: 130, ConsolidatedRateCents: 88, DimFactor: pricing.DefaultDimFactor})

	producer := pkgkafka.NewProducer(cfg.KAFKA_BROKER, cfg.KAFKA_GROUP_TOPIC)
	defer producer.Close()

	m := matcher.New(reg, scorer, rates, cfg.LaneDefaults(), cfg.Thresholds())
	svc := service.NewConsolidationService(reg, m, rates, producer)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	// Worker 1: shipment intake. Every shipment.created event goes through
	// the matcher.
	intake := pkgkafka.NewConsumer([]string{cfg.KAFKA_BROKER}, cfg.KAFKA_INTAKE_TOPIC, "consolidation-group")
	wg.Add(1)
	go func() {
		defer wg.Done()
		intake.Start(ctx, func(ctx context.Context, key, value []byte) error {
			return handleShipmentCreated(ctx, svc, value)
		})
	}()

	// Worker 2: cancellation sweeper for overdue underfilled groups.
	sweeper := worker.NewSweeper(svc, cfg.SweepInterval())
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Start(ctx)
	}()

	// Worker 3: notification bridge. Copies group events into the RabbitMQ
	// queue the notification service consumes. Optional; skipped when
	// RabbitMQ is not configured.
	var rabbitClient *pkgrabbit.Client
	var bridge *pkgkafka.Consumer
	if cfg.RABBITMQ_HOST != "" {
		var err error
		rabbitClient, err = pkgrabbit.NewClient(cfg.GetRabbitMQURL())
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		if err := rabbitClient.CreateQueue(cfg.RABBITMQ_QUEUE); err != nil {
			log.Fatalf("Failed to create notification queue: %v", err)
		}
		bridge = pkgkafka.NewConsumer([]string{cfg.KAFKA_BROKER}, cfg.KAFKA_GROUP_TOPIC, "consolidation-notification-bridge")
		wg.Add(1)
		go func() {
			defer wg.Done()
			bridge.Start(ctx, func(ctx context.Context, key, value []byte) error {
				return rabbitClient.Publish(ctx, cfg.RABBITMQ_QUEUE, value)
			})
		}()
		log.Println("Notification bridge started")
	} else {
		log.Println("RABBITMQ_HOST not set, notification bridge disabled")
	}

	log.Println("Consolidation service running. Press Ctrl+C to stop.")
	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-stopSignal
	log.Printf("Received signal: %v. Initiating shutdown...", receivedSignal)

	cancel()
	wg.Wait()

	intake.Close()
	if bridge != nil {
		bridge.Close()
	}
	if rabbitClient != nil {
		if err := rabbitClient.Close(); err != nil {
			log.Printf("Failed to close RabbitMQ connection: %v", err)
		}
	}
	log.Println("Service shutdown complete.")
}

// handleShipmentCreated decodes one intake event and submits it for matching.
// Bad payloads are logged and committed; only infrastructure failures return
// an error for redelivery.
func handleShipmentCreated(ctx context.Context, svc *service.ConsolidationService, value []byte) error {
	var envelope struct {
		Event   string                 `json:"event"`
		Payload shipmentCreatedPayload `json:"payload"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		log.Printf("[Intake] Skipping malformed message: %v", err)
		return nil
	}
	if envelope.Event != "shipment.created" {
		return nil
	}
	p := envelope.Payload

	var deadline time.Time
	if p.Deadline != "" {
		t, err := time.Parse(time.RFC3339, p.Deadline)
		if err != nil {
			log.Printf("[Intake] Shipment %s has unparseable deadline %q, ignoring it", p.ID, p.Deadline)
		} else {
			deadline = t
		}
	}

	out, err := svc.SubmitShipment(ctx, service.ShipmentInput{
		ID:                p.ID,
		OwnerID:           p.OwnerID,
		OriginHub:         p.OriginHub,
		Destination:       p.Destination,
		WeightKg:          p.WeightKg,
		VolumeM3:          p.VolumeM3,
		Category:          models.GoodsCategory(p.Category),
		ValueCents:        p.ValueCents,
		Deadline:          deadline,
		AllowIncompatible: p.AllowIncompatible,
	})
	if err != nil {
		if errors.Is(err, matcher.ErrInvalidShipment) {
			// The producer's bug, not a reason to block the partition.
			log.Printf("[Intake] Rejected shipment %s: %v", p.ID, err)
			return nil
		}
		// Infrastructure failure. Leave the offset uncommitted so kafka
		// redelivers.
		return err
	}
	log.Printf("[Intake] Shipment %s joined group %s (%s), saves %d cents", p.ID, out.GroupID, out.GroupStatus, out.Quote.SavingsCents)
	return nil
}
