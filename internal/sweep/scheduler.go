// Package sweep runs the background cadence of the retention engine:
// health scoring sweeps, churn prediction, playbook triggering and
// step advancement, and expansion scans.
package sweep

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/retainly/internal/cache"
	"github.com/retainly/internal/churn"
	"github.com/retainly/internal/expansion"
	"github.com/retainly/internal/playbook"
	"github.com/retainly/internal/profile"
	"github.com/retainly/internal/score"
	"github.com/retainly/internal/tenant"
	"github.com/retainly/pkg/models"
)

// SchedulerConfig represents sweep scheduler configuration
type SchedulerConfig struct {
	// HealthInterval is how often the health/churn sweep runs
	HealthInterval time.Duration `json:"health_interval" yaml:"health_interval"`

	// ExpansionInterval is how often the expansion scan runs
	ExpansionInterval time.Duration `json:"expansion_interval" yaml:"expansion_interval"`

	// StepInterval is how often due playbook steps are advanced
	StepInterval time.Duration `json:"step_interval" yaml:"step_interval"`

	// TriggerUrgency is the minimum urgency tier that auto-starts a
	// retention playbook
	TriggerUrgency models.InterventionUrgency `json:"trigger_urgency" yaml:"trigger_urgency"`

	// DefaultPlaybookID runs when the tenant's vertical declares no
	// override for the predicted urgency
	DefaultPlaybookID string `json:"default_playbook_id" yaml:"default_playbook_id"`
}

// DefaultSchedulerConfig returns default sweep configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		HealthInterval:    6 * time.Hour,
		ExpansionInterval: 24 * time.Hour,
		StepInterval:      time.Minute,
		TriggerUrgency:    models.UrgencyHigh,
		DefaultPlaybookID: "pb-default-retention",
	}
}

var urgencyRank = map[models.InterventionUrgency]int{
	models.UrgencyNone:     0,
	models.UrgencyLow:      1,
	models.UrgencyMedium:   2,
	models.UrgencyHigh:     3,
	models.UrgencyCritical: 4,
}

// Scheduler orchestrates the background retention sweeps
type Scheduler struct {
	config     SchedulerConfig
	directory  tenant.Directory
	profiles   profile.Store
	calculator *score.Calculator
	predictor  *churn.Predictor
	engine     *playbook.Engine
	detector   *expansion.Detector
	cache      *cache.RedisCache

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a new sweep scheduler. The cache is optional;
// when nil, invalidation is skipped.
func NewScheduler(
	config SchedulerConfig,
	directory tenant.Directory,
	profiles profile.Store,
	calculator *score.Calculator,
	predictor *churn.Predictor,
	engine *playbook.Engine,
	detector *expansion.Detector,
	redisCache *cache.RedisCache,
) *Scheduler {
	return &Scheduler{
		config:     config,
		directory:  directory,
		profiles:   profiles,
		calculator: calculator,
		predictor:  predictor,
		engine:     engine,
		detector:   detector,
		cache:      redisCache,
	}
}

// Start launches the background sweep loops
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("sweep scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(3)
	go s.loop(ctx, s.config.HealthInterval, "health", func(ctx context.Context) {
		if _, err := s.RunHealthSweep(ctx); err != nil {
			log.Printf("Health sweep failed: %v", err)
		}
	})
	go s.loop(ctx, s.config.ExpansionInterval, "expansion", func(ctx context.Context) {
		if _, err := s.detector.ScanAll(ctx); err != nil {
			log.Printf("Expansion scan failed: %v", err)
		}
	})
	go s.loop(ctx, s.config.StepInterval, "playbook-steps", func(ctx context.Context) {
		if _, err := s.engine.RunDueSteps(ctx); err != nil {
			log.Printf("Playbook step sweep failed: %v", err)
		}
	})

	log.Printf("Sweep scheduler started (health every %s, expansion every %s, steps every %s)",
		s.config.HealthInterval, s.config.ExpansionInterval, s.config.StepInterval)
	return nil
}

// Stop halts the background loops and waits for them to drain
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("Sweep scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, name string, run func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			run(ctx)
		case <-s.stopCh:
			log.Printf("Sweep loop %s stopping", name)
			return
		case <-ctx.Done():
			log.Printf("Sweep loop %s stopping: %v", name, ctx.Err())
			return
		}
	}
}

// RunHealthSweep runs one full health pass: score every active tenant,
// predict churn from the fresh scores, and trigger playbooks for
// tenants whose urgency crosses the configured tier. It returns the
// number of tenants scored.
func (s *Scheduler) RunHealthSweep(ctx context.Context) (int, error) {
	processed, err := s.calculator.RunScheduledCalculation(ctx)
	if err != nil {
		return 0, err
	}

	tenants, err := s.directory.ListActiveTenants(ctx)
	if err != nil {
		return processed, err
	}

	for _, t := range tenants {
		prediction, err := s.predictor.Predict(ctx, t.ID)
		if err != nil {
			log.Printf("Churn prediction failed for tenant %s: %v", t.ID, err)
			continue
		}

		if s.cache != nil {
			if err := s.cache.InvalidateTenant(ctx, t.ID); err != nil {
				log.Printf("Cache invalidation failed for tenant %s: %v", t.ID, err)
			}
		}

		if urgencyRank[prediction.InterventionUrgency] >= urgencyRank[s.config.TriggerUrgency] {
			s.triggerPlaybook(ctx, t, prediction)
		}
	}

	return processed, nil
}

// triggerPlaybook starts the retention playbook mapped to the
// prediction's urgency. A conflict means an execution is already
// active for the pair, which is the expected steady state.
func (s *Scheduler) triggerPlaybook(ctx context.Context, t *tenant.Tenant, prediction *models.ChurnPrediction) {
	playbookID := s.resolvePlaybookID(ctx, t.Vertical, prediction.InterventionUrgency)
	if playbookID == "" {
		return
	}

	if _, err := s.engine.Execute(ctx, playbookID, t.ID); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return
		}
		log.Printf("Failed to start playbook %s for tenant %s: %v", playbookID, t.ID, err)
	}
}

// resolvePlaybookID consults the vertical's override map before
// falling back to the default playbook.
func (s *Scheduler) resolvePlaybookID(ctx context.Context, verticalID string, urgency models.InterventionUrgency) string {
	if verticalID != "" {
		p, err := s.profiles.GetProfile(ctx, verticalID)
		if err == nil && p.PlaybookOverrides != nil {
			if id, ok := p.PlaybookOverrides[string(urgency)]; ok {
				return id
			}
		}
	}
	return s.config.DefaultPlaybookID
}
