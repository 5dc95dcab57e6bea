package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/retainly/internal/billing"
	"github.com/retainly/internal/cache"
	"github.com/retainly/internal/churn"
	"github.com/retainly/internal/config"
	"github.com/retainly/internal/events"
	"github.com/retainly/internal/expansion"
	"github.com/retainly/internal/facts"
	"github.com/retainly/internal/graph"
	"github.com/retainly/internal/nps"
	"github.com/retainly/internal/playbook"
	"github.com/retainly/internal/profile"
	"github.com/retainly/internal/score"
	"github.com/retainly/internal/sweep"
	"github.com/retainly/internal/tenant"
	"github.com/retainly/pkg/models"
)

// The sweeper runs the background retention cadence without serving
// the API. It shares state with the gateway through the graph store,
// so a persistent deployment is required.
func main() {
	var (
		configFile = flag.String("config", "config/config.yaml", "Configuration file path")
		once       = flag.Bool("once", false, "Run a single health sweep and exit")
	)
	flag.Parse()

	cfg, err := config.LoadFrom(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if !cfg.Graph.Enabled {
		log.Fatalf("The sweeper requires the graph store; enable graph in the configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := graph.NewNeo4jStore(graph.StoreConfig{
		URI:         cfg.Graph.URI,
		Database:    cfg.Graph.Database,
		Username:    cfg.Graph.Username,
		Password:    cfg.Graph.Password,
		MaxPoolSize: cfg.Graph.MaxPoolSize,
		ConnTimeout: cfg.Graph.ConnTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize graph store: %v", err)
	}
	defer store.Close(ctx)

	sink, err := events.NewKafkaSink(events.KafkaSinkConfig{
		Brokers:      cfg.Events.Brokers,
		ClientID:     fmt.Sprintf("%s-sweeper", cfg.Events.ClientID),
		BatchSize:    cfg.Events.BatchSize,
		BatchTimeout: cfg.Events.BatchTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize event sink: %v", err)
	}
	defer sink.Close()

	var redisCache *cache.RedisCache
	if cfg.Cache.Enabled {
		redisCache = cache.NewRedisCache(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, cfg.Cache.Prefix)
		defer redisCache.Close()
	}

	catalog := billing.DefaultCatalog()
	if cfg.Billing.StripeKey != "" {
		if err := catalog.RefreshPrices(cfg.Billing.StripeKey); err != nil {
			log.Printf("Warning: price refresh failed: %v", err)
		}
	}

	directory := tenant.NewMemoryDirectory()
	factsSource := facts.NewMemorySource()
	consumer := facts.NewConsumer(facts.DefaultConsumerConfig(cfg.Events.Brokers), factsSource, directory)
	defer consumer.Close()
	go consumer.Run(ctx)

	// Profiles live in the graph store, so gateway edits apply here.
	var profiles profile.Store = store

	npsService := nps.NewService(nps.ServiceConfig{
		CooldownDays:    cfg.Nps.CooldownDays,
		ScoreWindowDays: cfg.Nps.ScoreWindowDays,
	}, store, sink)

	calculator := score.NewCalculator(score.CalculatorConfig{
		TicketPenalty:            cfg.Score.TicketPenalty,
		DefaultSatisfaction:      cfg.Score.DefaultSatisfaction,
		DefaultMaxInactivityDays: cfg.Score.DefaultMaxInactivityDays,
		TrendDelta:               cfg.Score.TrendDelta,
		MinInterval:              cfg.Score.MinInterval,
		TenantTimeout:            cfg.Score.TenantTimeout,
		WorkerCount:              cfg.Score.WorkerCount,
	}, directory, factsSource, profiles, store, store, npsReader{npsService}, sink)

	predictor := churn.NewPredictor(churn.PredictorConfig{
		HealthBlend:         cfg.Churn.HealthBlend,
		SupportSpikeTickets: cfg.Churn.SupportSpikeTickets,
		UsageDeclineWeeks:   cfg.Churn.UsageDeclineWeeks,
	}, directory, factsSource, profiles, store, store, sink)

	engine := playbook.NewEngine(store, store, sink)

	detector := expansion.NewDetector(expansion.DetectorConfig{
		UsageThreshold:     cfg.Expansion.UsageThreshold,
		ConsecutivePeriods: cfg.Expansion.ConsecutivePeriods,
	}, directory, factsSource, catalog, store, sink)

	scheduler := sweep.NewScheduler(sweep.SchedulerConfig{
		HealthInterval:    cfg.Sweep.HealthInterval,
		ExpansionInterval: cfg.Sweep.ExpansionInterval,
		StepInterval:      cfg.Sweep.StepInterval,
		TriggerUrgency:    models.InterventionUrgency(cfg.Sweep.TriggerUrgency),
		DefaultPlaybookID: cfg.Sweep.DefaultPlaybookID,
	}, directory, profiles, calculator, predictor, engine, detector, redisCache)

	if *once {
		processed, err := scheduler.RunHealthSweep(ctx)
		if err != nil {
			log.Fatalf("Health sweep failed: %v", err)
		}
		log.Printf("Health sweep complete: %d tenants processed", processed)
		return
	}

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start sweep scheduler: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping sweeper...")
	scheduler.Stop()
	cancel()
	log.Println("Sweeper stopped")
}

// npsReader adapts the NPS service to the calculator's reader contract
type npsReader struct {
	svc *nps.Service
}

func (r npsReader) GetScore(ctx context.Context, tenantID string) (*int, error) {
	scoreValue, _, err := r.svc.GetScore(ctx, tenantID)
	return scoreValue, err
}
