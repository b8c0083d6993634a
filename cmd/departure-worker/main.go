// cmd/departure-worker/main.go

package main

import (
	"log"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/kmerland/hubdispo-sub001/internal/activities"
	"github.com/kmerland/hubdispo-sub001/internal/compatibility"
	"github.com/kmerland/hubdispo-sub001/internal/config"
	"github.com/kmerland/hubdispo-sub001/internal/matcher"
	"github.com/kmerland/hubdispo-sub001/internal/models"
	"github.com/kmerland/hubdispo-sub001/internal/pricing"
	"github.com/kmerland/hubdispo-sub001/internal/registry"
	"github.com/kmerland/hubdispo-sub001/internal/service"
	"github.com/kmerland/hubdispo-sub001/internal/workflow"
	pkgkafka "github.com/kmerland/hubdispo-sub001/pkg/kafka"
)

// TaskQueue is shared between this worker and whoever schedules
// DepartureWorkflow runs.
const TaskQueue = "CONSOLIDATION_TASK_QUEUE"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg := config.LoadConfig()

	scorer := compatibility.NewScorer()

	// The departure worker always runs against Postgres: a durable workflow
	// driving an in-memory registry would lock groups nobody else can see.
	if cfg.DB_HOST == "" {
		log.Fatal("DB_HOST is required for the departure worker")
	}
	reg, err := registry.NewPostgresRegistry(cfg.GetDBURL(), scorer, cfg.Thresholds())
	if err != nil {
		log.Fatalf("Worker failed to connect to DB: %v", err)
	}
	defer reg.Close()

	// The config falls back to localhost for the broker, so the opt-out is
	// the raw env var being unset.
	var producer pkgkafka.Publisher
	if os.Getenv("KAFKA_BROKER") != "" {
		producer = pkgkafka.NewProducer(cfg.KAFKA_BROKER, cfg.KAFKA_GROUP_TOPIC)
		defer producer.Close()
		log.Println("Worker connected to Kafka")
	} else {
		log.Println("Warning: KAFKA_BROKER not set, worker will not publish events")
	}

	rates := pricing.NewStaticRates(nil, models.LaneRates{
		IndividualRateCents:   130,
		ConsolidatedRateCents: 88,
		DimFactor:             pricing.DefaultDimFactor,
	})
	m := matcher.New(reg, scorer, rates, cfg.LaneDefaults(), cfg.Thresholds())
	svc := service.NewConsolidationService(reg, m, rates, producer)

	c, err := client.Dial(client.Options{
		HostPort: cfg.TEMPORAL_HOST_PORT,
	})
	if err != nil {
		log.Fatalln("Unable to create Temporal client", err)
	}
	defer c.Close()
	log.Println("Worker connected to Temporal at:", cfg.TEMPORAL_HOST_PORT)

	activityHost := &activities.GroupActivities{
		Service: svc,
	}

	w := worker.New(c, TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflow.DepartureWorkflow)
	w.RegisterWorkflow(workflow.SweepWorkflow)

	w.RegisterActivity(activityHost.ACTIVITY_LockGroup)
	w.RegisterActivity(activityHost.ACTIVITY_DepartGroup)
	w.RegisterActivity(activityHost.ACTIVITY_ArchiveGroup)
	w.RegisterActivity(activityHost.ACTIVITY_SweepExpiredGroups)

	log.Println("Worker started. Pollers are running...")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalln("Unable to start worker", err)
	}
}
