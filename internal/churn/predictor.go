// Package churn implements the Seasonal Churn Predictor: a base
// probability derived from the current health score and matched churn
// risk signals, corrected by the vertical's seasonality calendar and
// clamped into [0,1].
package churn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/retainly/internal/events"
	"github.com/retainly/internal/facts"
	"github.com/retainly/internal/profile"
	"github.com/retainly/internal/tenant"
	"github.com/retainly/pkg/models"
)

// Signal identifiers matched against tenant facts. Verticals list a
// subset of these in their churn signal catalogs.
const (
	SignalInactivity    = "inactivity"
	SignalSupportSpike  = "support_spike"
	SignalPaymentIssue  = "payment_issue"
	SignalUsageDecline  = "usage_decline"
	SignalSeatShrinkage = "seat_shrinkage"
)

// PredictionStore is the one-row-per-tenant-per-month repository
type PredictionStore interface {
	UpsertPrediction(ctx context.Context, p *models.ChurnPrediction) error
	LatestPrediction(ctx context.Context, tenantID string) (*models.ChurnPrediction, error)
	PredictionHistory(ctx context.Context, tenantID string, limit int) ([]*models.ChurnPrediction, error)
}

// ScoreReader provides the current health score the base probability
// is derived from
type ScoreReader interface {
	LatestScore(ctx context.Context, tenantID string) (*models.HealthScore, error)
}

// PredictorConfig represents churn predictor configuration
type PredictorConfig struct {
	// HealthBlend weights the inverse health score against the signal
	// sum in the base probability; signals get the complement
	HealthBlend float64 `json:"health_blend" yaml:"health_blend"`

	// SupportSpikeTickets is the 30-day ticket count that fires the
	// support_spike signal
	SupportSpikeTickets int `json:"support_spike_tickets" yaml:"support_spike_tickets"`

	// UsageDeclineWeeks is the consecutive decline streak that fires
	// the usage_decline signal
	UsageDeclineWeeks int `json:"usage_decline_weeks" yaml:"usage_decline_weeks"`
}

// DefaultPredictorConfig returns default predictor configuration
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		HealthBlend:         0.6,
		SupportSpikeTickets: 5,
		UsageDeclineWeeks:   3,
	}
}

// Predictor computes seasonally adjusted churn predictions
type Predictor struct {
	config    PredictorConfig
	directory tenant.Directory
	feed      facts.Feed
	profiles  profile.Store
	scores    ScoreReader
	store     PredictionStore
	sink      events.Sink

	// now is swappable for tests pinning the prediction month
	now func() time.Time
}

// NewPredictor creates a new churn predictor
func NewPredictor(
	config PredictorConfig,
	directory tenant.Directory,
	feed facts.Feed,
	profiles profile.Store,
	scores ScoreReader,
	store PredictionStore,
	sink events.Sink,
) *Predictor {
	return &Predictor{
		config:    config,
		directory: directory,
		feed:      feed,
		profiles:  profiles,
		scores:    scores,
		store:     store,
		sink:      sink,
		now:       time.Now,
	}
}

// Predict computes and upserts the tenant's prediction for the current
// calendar month. Calling it twice in one month overwrites the month's
// record rather than appending.
func (p *Predictor) Predict(ctx context.Context, tenantID string) (*models.ChurnPrediction, error) {
	t, err := p.directory.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant %s: %w", tenantID, err)
	}

	score, err := p.scores.LatestScore(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load health score for tenant %s: %w", tenantID, err)
	}

	tenantFacts, err := p.feed.GetFacts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get facts for tenant %s: %w", tenantID, err)
	}

	var vertical *models.RetentionProfile
	if prof, err := p.profiles.GetProfile(ctx, t.Vertical); err == nil {
		vertical = prof
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load profile for vertical %s: %w", t.Vertical, err)
	}

	now := p.now().UTC()
	base := p.baseProbability(score, tenantFacts, vertical)
	adjustment := seasonalAdjustment(vertical, now.Month())

	prediction := &models.ChurnPrediction{
		TenantID:            tenantID,
		VerticalID:          t.Vertical,
		PredictionMonth:     now.Format(models.PredictionMonthLayout),
		BaseProbability:     base,
		SeasonalAdjustment:  adjustment,
		AdjustedProbability: models.AdjustProbability(base, adjustment),
		PredictedAt:         now,
	}
	prediction.InterventionUrgency = models.UrgencyForProbability(prediction.AdjustedProbability)

	if err := p.store.UpsertPrediction(ctx, prediction); err != nil {
		return nil, fmt.Errorf("failed to persist churn prediction for tenant %s: %w", tenantID, err)
	}

	p.publish(ctx, prediction)

	return prediction, nil
}

// GetLatest returns the most recent prediction for a tenant.
func (p *Predictor) GetLatest(ctx context.Context, tenantID string) (*models.ChurnPrediction, error) {
	return p.store.LatestPrediction(ctx, tenantID)
}

// GetHistory returns predictions newest month first.
func (p *Predictor) GetHistory(ctx context.Context, tenantID string, limit int) ([]*models.ChurnPrediction, error) {
	return p.store.PredictionHistory(ctx, tenantID, limit)
}

// baseProbability blends the inverse-scaled overall health score with
// the weighted share of matched churn risk signals.
func (p *Predictor) baseProbability(score *models.HealthScore, f *models.TenantFacts, vertical *models.RetentionProfile) float64 {
	inverseHealth := float64(100-score.OverallScore) / 100

	signalShare := 0.0
	if vertical != nil && len(vertical.ChurnRiskSignals) > 0 {
		matched := 0.0
		total := 0.0
		for _, signal := range vertical.ChurnRiskSignals {
			total += signal.Weight
			if p.signalFires(signal.SignalID, f, vertical) {
				matched += signal.Weight
			}
		}
		if total > 0 {
			signalShare = matched / total
		}
	}

	blend := p.config.HealthBlend
	base := inverseHealth*blend + signalShare*(1-blend)
	if base < 0 {
		return 0
	}
	if base > 1 {
		return 1
	}
	return base
}

// signalFires evaluates one catalog signal against the tenant facts.
func (p *Predictor) signalFires(signalID string, f *models.TenantFacts, vertical *models.RetentionProfile) bool {
	switch signalID {
	case SignalInactivity:
		if f.LastActivityAt.IsZero() {
			return false
		}
		inactiveDays := int(time.Since(f.LastActivityAt).Hours() / 24)
		return inactiveDays > vertical.MaxInactivityDays
	case SignalSupportSpike:
		return f.TicketsLast30d >= p.config.SupportSpikeTickets || f.EscalatedTickets > 0
	case SignalPaymentIssue:
		return f.BillingStatus == models.BillingPastDue || f.BillingStatus == models.BillingUnpaid
	case SignalUsageDecline:
		return f.ConsecutiveDeclineWeeks >= p.config.UsageDeclineWeeks
	case SignalSeatShrinkage:
		return f.MRRChangePercent < -10
	default:
		return false
	}
}

// seasonalAdjustment resolves the calendar entry for the prediction
// month; a vertical without an entry contributes no adjustment.
func seasonalAdjustment(vertical *models.RetentionProfile, month time.Month) float64 {
	if vertical == nil {
		return 0
	}
	entry, ok := vertical.SeasonalEntry(month)
	if !ok {
		return 0
	}
	return entry.AdjustmentPercent
}

func (p *Predictor) publish(ctx context.Context, prediction *models.ChurnPrediction) {
	severity := models.EventSeverityInfo
	if prediction.InterventionUrgency == models.UrgencyHigh || prediction.InterventionUrgency == models.UrgencyCritical {
		severity = models.EventSeverityWarning
	}

	event := models.NewRetentionEvent(
		models.EventTypeChurnPredicted,
		severity,
		prediction.TenantID,
		"churn-predictor",
		fmt.Sprintf("churn probability %.2f, urgency %s", prediction.AdjustedProbability, prediction.InterventionUrgency),
	)
	event.Metadata = map[string]interface{}{
		"prediction_month":     prediction.PredictionMonth,
		"base_probability":     prediction.BaseProbability,
		"seasonal_adjustment":  prediction.SeasonalAdjustment,
		"adjusted_probability": prediction.AdjustedProbability,
		"urgency":              string(prediction.InterventionUrgency),
	}
	if err := p.sink.Publish(ctx, events.TopicChurnPredictions, event); err != nil {
		log.Printf("Failed to publish churn prediction event for tenant %s: %v", prediction.TenantID, err)
	}
}
