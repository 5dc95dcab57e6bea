package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/retainly/internal/api"
	"github.com/retainly/internal/billing"
	"github.com/retainly/internal/cache"
	"github.com/retainly/internal/churn"
	"github.com/retainly/internal/config"
	"github.com/retainly/internal/events"
	"github.com/retainly/internal/expansion"
	"github.com/retainly/internal/facts"
	"github.com/retainly/internal/graph"
	"github.com/retainly/internal/health"
	"github.com/retainly/internal/kafka"
	"github.com/retainly/internal/memstore"
	"github.com/retainly/internal/nps"
	"github.com/retainly/internal/playbook"
	"github.com/retainly/internal/profile"
	"github.com/retainly/internal/score"
	"github.com/retainly/internal/sweep"
	"github.com/retainly/internal/tenant"
	"github.com/retainly/pkg/models"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "config/config.yaml", "Configuration file path")
		devMode     = flag.Bool("dev", false, "Run with in-memory stores and a logging event sink")
		showVersion = flag.Bool("version", false, "Show version information")
		help        = flag.Bool("help", false, "Show help information")
	)
	flag.Parse()

	if *help {
		printHelp()
		return
	}

	if *showVersion {
		fmt.Printf("Retainly version %s\nCommit: %s\nBuilt: %s\n", version, commit, date)
		return
	}

	log.Printf("Starting Retainly v%s (commit: %s, built: %s)", version, commit, date)

	cfg := loadConfig(*configFile, *devMode)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := health.NewChecker()

	// Event sink
	var sink events.Sink
	if *devMode {
		sink = events.NewLogSink()
	} else {
		topicManager := kafka.NewTopicManager(cfg.Events.Brokers)
		if err := topicManager.CreateTopics(); err != nil {
			log.Printf("Warning: failed to create topics: %v", err)
		}

		kafkaSink, err := events.NewKafkaSink(events.KafkaSinkConfig{
			Brokers:      cfg.Events.Brokers,
			ClientID:     cfg.Events.ClientID,
			BatchSize:    cfg.Events.BatchSize,
			BatchTimeout: cfg.Events.BatchTimeout,
		})
		if err != nil {
			log.Fatalf("Failed to initialize event sink: %v", err)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}
	checker.RegisterFunc("events", sink.Ping)

	// Retention state store. The graph store also holds the retention
	// profiles, so profile edits made here reach the sweeper process.
	var store retentionStore = memstore.New()
	var profiles profile.Store = profile.NewMemoryStore()
	if !*devMode && cfg.Graph.Enabled {
		graphStore, err := graph.NewNeo4jStore(graph.StoreConfig{
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
		defer graphStore.Close(ctx)
		store = graphStore
		profiles = graphStore
		checker.RegisterFunc("graph", graphStore.Ping)
	}

	// Cache
	var redisCache *cache.RedisCache
	if !*devMode && cfg.Cache.Enabled {
		redisCache = cache.NewRedisCache(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, cfg.Cache.Prefix)
		if err := redisCache.Ping(ctx); err != nil {
			log.Fatalf("Failed to reach Redis: %v", err)
		}
		defer redisCache.Close()
		checker.RegisterFunc("cache", redisCache.Ping)
	}

	// Billing catalog
	catalog := billing.DefaultCatalog()
	if cfg.Billing.StripeKey != "" {
		if err := catalog.RefreshPrices(cfg.Billing.StripeKey); err != nil {
			log.Printf("Warning: initial price refresh failed: %v", err)
		}
		go refreshPricesLoop(ctx, catalog, cfg.Billing.StripeKey, cfg.Billing.RefreshInterval)
	}

	// Tenant directory and facts feed
	directory := tenant.NewMemoryDirectory()
	factsSource := facts.NewMemorySource()
	if *devMode {
		seedDemoData(directory, factsSource)
	} else {
		consumer := facts.NewConsumer(facts.DefaultConsumerConfig(cfg.Events.Brokers), factsSource, directory)
		defer consumer.Close()
		go consumer.Run(ctx)
	}

	// Engines
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

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start sweep scheduler: %v", err)
	}

	// API gateway
	var readCache api.ReadCache
	if redisCache != nil {
		readCache = redisCache
	}
	gateway := api.NewGateway(api.GatewayConfig{
		Host:           cfg.API.Host,
		Port:           cfg.API.Port,
		ReadTimeout:    cfg.API.ReadTimeout,
		WriteTimeout:   cfg.API.WriteTimeout,
		IdleTimeout:    cfg.API.IdleTimeout,
		EnableCORS:     cfg.API.EnableCORS,
		AllowedOrigins: cfg.API.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}, profiles, calculator, predictor, engine, detector, npsService, scheduler, readCache, checker)

	go func() {
		if err := gateway.Start(); err != nil {
			log.Printf("Gateway stopped: %v", err)
			cancel()
		}
	}()

	waitForShutdown(cancel, gateway, scheduler)
}

// retentionStore is the full repository surface both store
// implementations provide
type retentionStore interface {
	score.HistoryStore
	churn.PredictionStore
	playbook.ExecutionStore
	playbook.DefinitionStore
	expansion.SignalStore
	nps.ResponseStore
}

// npsReader adapts the NPS service to the calculator's reader contract
type npsReader struct {
	svc *nps.Service
}

func (r npsReader) GetScore(ctx context.Context, tenantID string) (*int, error) {
	scoreValue, _, err := r.svc.GetScore(ctx, tenantID)
	return scoreValue, err
}

func loadConfig(path string, devMode bool) *config.Config {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if devMode {
			log.Printf("No config file at %s, using defaults", path)
			return config.Default()
		}
		log.Fatalf("Configuration file not found: %s", path)
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func refreshPricesLoop(ctx context.Context, catalog *billing.Catalog, stripeKey string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := catalog.RefreshPrices(stripeKey); err != nil {
				log.Printf("Price refresh failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// seedDemoData loads a small fixture set so the dev binary serves
// meaningful responses out of the box.
func seedDemoData(directory *tenant.MemoryDirectory, source *facts.MemorySource) {
	directory.Put(&tenant.Tenant{
		ID:       "t-acme",
		Name:     "Acme Corp",
		Slug:     "acme",
		Plan:     "growth",
		Vertical: "ecommerce",
		Status:   tenant.TenantStatusActive,
	})
	directory.Put(&tenant.Tenant{
		ID:       "t-globex",
		Name:     "Globex",
		Slug:     "globex",
		Plan:     "starter",
		Vertical: "fintech",
		Status:   tenant.TenantStatusActive,
	})

	now := time.Now().UTC()
	source.SetFacts("t-acme", &models.TenantFacts{
		ActiveDays:       26,
		PeriodDays:       30,
		LastActivityAt:   now.Add(-24 * time.Hour),
		FeaturesUsed:     map[string]bool{"dashboards": true, "exports": true},
		PlanUsageUnits:   9400,
		PlanLimitUnits:   10000,
		HighUsagePeriods: 3,
		SeatsUsed:        18,
		SeatLimit:        20,
		OpenTickets:      1,
		BillingStatus:    models.BillingCurrent,
		MRRChangePercent: 4,
	})
	source.SetFacts("t-globex", &models.TenantFacts{
		ActiveDays:              6,
		PeriodDays:              30,
		LastActivityAt:          now.Add(-12 * 24 * time.Hour),
		FeaturesUsed:            map[string]bool{"dashboards": true},
		PlanUsageUnits:          900,
		PlanLimitUnits:          5000,
		OpenTickets:             4,
		ConsecutiveDeclineWeeks: 4,
		BillingStatus:           models.BillingPastDue,
		MRRChangePercent:        -12,
	})

	log.Printf("Seeded demo tenants and facts")
}

func waitForShutdown(cancel context.CancelFunc, gateway *api.Gateway, scheduler *sweep.Scheduler) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := gateway.Stop(shutdownCtx); err != nil {
		log.Printf("Error during gateway shutdown: %v", err)
	}

	scheduler.Stop()
	cancel()
	log.Println("Retainly stopped")
}

func printHelp() {
	fmt.Printf(`Retainly - Customer Retention Intelligence Engine

Usage:
  retainly [flags]

Flags:
  -config string
        Configuration file path (default "config/config.yaml")
  -dev
        Run with in-memory stores and a logging event sink
  -version
        Show version information
  -help
        Show this help message

Examples:
  retainly -dev                              # Local development mode
  retainly -config config/production.yaml    # Start with production config
`)
}
