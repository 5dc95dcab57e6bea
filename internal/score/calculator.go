// Package score implements the Health Score Calculator: normalized
// 0-100 sub-scores from tenant usage/billing/support facts, combined
// with the vertical's health weights into an overall score, categorized
// and persisted per calculation run.
package score

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/retainly/internal/events"
	"github.com/retainly/internal/facts"
	"github.com/retainly/internal/profile"
	"github.com/retainly/internal/tenant"
	"github.com/retainly/pkg/models"
)

// HistoryStore is the append-only health score repository
type HistoryStore interface {
	SaveScore(ctx context.Context, score *models.HealthScore) error
	LatestScore(ctx context.Context, tenantID string) (*models.HealthScore, error)
	ScoreHistory(ctx context.Context, tenantID string, limit int) ([]*models.HealthScore, error)
}

// ChurnReader provides the latest prediction so new scores can carry
// the adjusted churn probability for dashboard reads
type ChurnReader interface {
	LatestPrediction(ctx context.Context, tenantID string) (*models.ChurnPrediction, error)
}

// NpsReader provides the current NPS score feeding the satisfaction
// sub-score; nil means no responses yet
type NpsReader interface {
	GetScore(ctx context.Context, tenantID string) (*int, error)
}

// CalculatorConfig represents health score calculator configuration.
// The normalization constants are configuration rather than hard
// business fact.
type CalculatorConfig struct {
	// TicketPenalty is subtracted from the support sub-score per open ticket
	TicketPenalty int `json:"ticket_penalty" yaml:"ticket_penalty"`

	// DefaultSatisfaction is used when a tenant has no NPS responses
	DefaultSatisfaction int `json:"default_satisfaction" yaml:"default_satisfaction"`

	// DefaultMaxInactivityDays applies when a tenant has no vertical profile
	DefaultMaxInactivityDays int `json:"default_max_inactivity_days" yaml:"default_max_inactivity_days"`

	// TrendDelta is the overall-score change below which the trend is stable
	TrendDelta int `json:"trend_delta" yaml:"trend_delta"`

	// MinInterval is the idempotence window for scheduled runs
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"`

	// TenantTimeout is the per-tenant calculation budget within a sweep
	TenantTimeout time.Duration `json:"tenant_timeout" yaml:"tenant_timeout"`

	// WorkerCount bounds sweep parallelism across tenants
	WorkerCount int `json:"worker_count" yaml:"worker_count"`
}

// DefaultCalculatorConfig returns default calculator configuration
func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{
		TicketPenalty:            10,
		DefaultSatisfaction:      50,
		DefaultMaxInactivityDays: 30,
		TrendDelta:               3,
		MinInterval:              6 * time.Hour,
		TenantTimeout:            30 * time.Second,
		WorkerCount:              8,
	}
}

// Calculator computes and persists tenant health scores
type Calculator struct {
	config    CalculatorConfig
	directory tenant.Directory
	feed      facts.Feed
	profiles  profile.Store
	history   HistoryStore
	churn     ChurnReader
	nps       NpsReader
	sink      events.Sink

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// NewCalculator creates a new health score calculator
func NewCalculator(
	config CalculatorConfig,
	directory tenant.Directory,
	feed facts.Feed,
	profiles profile.Store,
	history HistoryStore,
	churn ChurnReader,
	nps NpsReader,
	sink events.Sink,
) *Calculator {
	return &Calculator{
		config:    config,
		directory: directory,
		feed:      feed,
		profiles:  profiles,
		history:   history,
		churn:     churn,
		nps:       nps,
		sink:      sink,
		lastRun:   make(map[string]time.Time),
	}
}

// Calculate computes, persists and returns a fresh health score for
// one tenant.
func (c *Calculator) Calculate(ctx context.Context, tenantID string) (*models.HealthScore, error) {
	t, err := c.directory.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant %s: %w", tenantID, err)
	}

	tenantFacts, err := c.feed.GetFacts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get facts for tenant %s: %w", tenantID, err)
	}

	weights, maxInactivityDays, criticalFeatures := c.resolveProfile(ctx, t)

	score := &models.HealthScore{
		TenantID:     tenantID,
		CalculatedAt: time.Now().UTC(),
		Engagement:   c.engagementScore(tenantFacts, maxInactivityDays),
		Adoption:     adoptionScore(tenantFacts, criticalFeatures),
		Satisfaction: c.satisfactionScore(ctx, tenantID),
		Support:      c.supportScore(tenantFacts),
		Growth:       growthScore(tenantFacts),
	}

	score.OverallScore = weightedOverall(score, weights)
	score.Category = models.CategoryForScore(score.OverallScore)

	previous, err := c.history.LatestScore(ctx, tenantID)
	switch {
	case err == nil:
		score.Trend = c.trend(previous.OverallScore, score.OverallScore)
	case errors.Is(err, models.ErrNotFound):
		// First-ever calculation has no trend
		score.Trend = models.TrendStable
	default:
		return nil, fmt.Errorf("failed to load prior score for tenant %s: %w", tenantID, err)
	}

	if prediction, err := c.churn.LatestPrediction(ctx, tenantID); err == nil {
		score.ChurnProbability = prediction.AdjustedProbability
	} else if !errors.Is(err, models.ErrNotFound) {
		log.Printf("Failed to load churn prediction for tenant %s: %v", tenantID, err)
	}

	if err := c.history.SaveScore(ctx, score); err != nil {
		return nil, fmt.Errorf("failed to persist health score for tenant %s: %w", tenantID, err)
	}

	c.mu.Lock()
	c.lastRun[tenantID] = score.CalculatedAt
	c.mu.Unlock()

	c.publish(ctx, score, previous)

	return score, nil
}

// RunScheduledCalculation sweeps all active tenants and returns the
// count of tenants processed. A single tenant's failure is logged and
// skipped; it never aborts the sweep.
func (c *Calculator) RunScheduledCalculation(ctx context.Context) (int, error) {
	tenants, err := c.directory.ListActiveTenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tenants: %w", err)
	}

	workers := c.config.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan *tenant.Tenant)
	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				if !c.shouldCalculate(t.ID) {
					continue
				}

				tenantCtx, cancel := context.WithTimeout(ctx, c.config.TenantTimeout)
				_, err := c.Calculate(tenantCtx, t.ID)
				cancel()

				if err != nil {
					log.Printf("Failed to calculate health for tenant %s: %v", t.ID, err)
					continue
				}

				mu.Lock()
				processed++
				mu.Unlock()
			}
		}()
	}

	for _, t := range tenants {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return processed, ctx.Err()
		case jobs <- t:
		}
	}
	close(jobs)
	wg.Wait()

	return processed, nil
}

// GetLatest returns the most recent health score for a tenant.
func (c *Calculator) GetLatest(ctx context.Context, tenantID string) (*models.HealthScore, error) {
	return c.history.LatestScore(ctx, tenantID)
}

// GetHistory returns the tenant's score history, newest first.
func (c *Calculator) GetHistory(ctx context.Context, tenantID string, limit int) ([]*models.HealthScore, error) {
	return c.history.ScoreHistory(ctx, tenantID, limit)
}

// shouldCalculate applies the minimum-interval idempotence: scheduled
// re-invocation inside the window is a no-op, not an error.
func (c *Calculator) shouldCalculate(tenantID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastRun[tenantID]
	if !ok {
		return true
	}
	return time.Since(last) >= c.config.MinInterval
}

// resolveProfile returns the weights, inactivity threshold and critical
// feature set for a tenant, falling back to the documented equal-weight
// default when the vertical has no profile.
func (c *Calculator) resolveProfile(ctx context.Context, t *tenant.Tenant) (map[string]int, int, []string) {
	p, err := c.profiles.GetProfile(ctx, t.Vertical)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Printf("Failed to load profile for vertical %s: %v", t.Vertical, err)
		}
		return models.DefaultHealthWeights(), c.config.DefaultMaxInactivityDays, nil
	}
	return p.HealthWeights, p.MaxInactivityDays, p.CriticalFeatures
}

// engagementScore = min(100, activeDays/periodDays*100), zeroed when
// the tenant has been inactive longer than the vertical tolerates.
func (c *Calculator) engagementScore(f *models.TenantFacts, maxInactivityDays int) int {
	if !f.LastActivityAt.IsZero() {
		inactiveDays := int(time.Since(f.LastActivityAt).Hours() / 24)
		if inactiveDays > maxInactivityDays {
			return 0
		}
	}

	if f.PeriodDays <= 0 {
		return 0
	}
	ratio := float64(f.ActiveDays) / float64(f.PeriodDays)
	return clampScore(int(math.Round(ratio * 100)))
}

// adoptionScore is the fraction of the vertical's critical features in
// use. A vertical with no critical features configured requires
// nothing, so adoption is 100.
func adoptionScore(f *models.TenantFacts, criticalFeatures []string) int {
	if len(criticalFeatures) == 0 {
		return 100
	}

	used := 0
	for _, feature := range criticalFeatures {
		if f.FeaturesUsed[feature] {
			used++
		}
	}
	return clampScore(int(math.Round(float64(used) / float64(len(criticalFeatures)) * 100)))
}

// satisfactionScore rescales NPS from [-100,100] to [0,100]; tenants
// with no responses get the configured neutral default.
func (c *Calculator) satisfactionScore(ctx context.Context, tenantID string) int {
	nps, err := c.nps.GetScore(ctx, tenantID)
	if err != nil {
		log.Printf("Failed to get NPS score for tenant %s: %v", tenantID, err)
		return c.config.DefaultSatisfaction
	}
	if nps == nil {
		return c.config.DefaultSatisfaction
	}
	return clampScore((*nps + 100) / 2)
}

// supportScore = max(0, 100 - openTickets*penalty).
func (c *Calculator) supportScore(f *models.TenantFacts) int {
	return clampScore(100 - f.OpenTickets*c.config.TicketPenalty)
}

// growthScore centers MRR change on 50: flat revenue scores 50, +50%
// or better scores 100, -50% or worse scores 0.
func growthScore(f *models.TenantFacts) int {
	return clampScore(int(math.Round(50 + f.MRRChangePercent)))
}

// weightedOverall combines sub-scores with the vertical weights,
// rounded to an integer 0-100.
func weightedOverall(score *models.HealthScore, weights map[string]int) int {
	total := 0.0
	for _, name := range models.SubScoreNames() {
		total += float64(score.SubScore(name)) * float64(weights[name])
	}
	return clampScore(int(math.Round(total / 100)))
}

func (c *Calculator) trend(previous, current int) models.HealthTrend {
	delta := current - previous
	switch {
	case delta > c.config.TrendDelta:
		return models.TrendImproving
	case delta < -c.config.TrendDelta:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

// publish emits the score to the sink, plus an alert when the tenant
// enters the critical band. Sink failures are logged and skipped; the
// next cycle retries naturally.
func (c *Calculator) publish(ctx context.Context, score *models.HealthScore, previous *models.HealthScore) {
	event := models.NewRetentionEvent(
		models.EventTypeHealthScored,
		models.EventSeverityInfo,
		score.TenantID,
		"score-calculator",
		fmt.Sprintf("health score %d (%s)", score.OverallScore, score.Category),
	)
	event.Metadata = map[string]interface{}{
		"overall_score": score.OverallScore,
		"category":      string(score.Category),
		"trend":         string(score.Trend),
	}
	if err := c.sink.Publish(ctx, events.TopicHealthScores, event); err != nil {
		log.Printf("Failed to publish health score event for tenant %s: %v", score.TenantID, err)
	}

	enteredCritical := score.Category == models.HealthCritical &&
		(previous == nil || previous.Category != models.HealthCritical)
	if enteredCritical {
		alert := models.NewRetentionEvent(
			models.EventTypeHealthCritical,
			models.EventSeverityCritical,
			score.TenantID,
			"score-calculator",
			fmt.Sprintf("tenant entered critical health band with score %d", score.OverallScore),
		)
		if err := c.sink.Publish(ctx, events.TopicAlerts, alert); err != nil {
			log.Printf("Failed to publish critical health alert for tenant %s: %v", score.TenantID, err)
		}
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
