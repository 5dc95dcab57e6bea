// Package expansion implements the Expansion Signal Detector: it scans
// usage/billing facts against upsell thresholds and emits deduplicated
// opportunities priced from the plan catalog.
package expansion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/retainly/internal/billing"
	"github.com/retainly/internal/events"
	"github.com/retainly/internal/facts"
	"github.com/retainly/internal/tenant"
	"github.com/retainly/pkg/models"
)

// SignalStore persists expansion signals
type SignalStore interface {
	FindOpenSignal(ctx context.Context, tenantID string, signalType models.ExpansionSignalType) (*models.ExpansionSignal, error)
	CreateSignal(ctx context.Context, sig *models.ExpansionSignal) error
	GetSignal(ctx context.Context, signalID string) (*models.ExpansionSignal, error)
	UpdateSignal(ctx context.Context, sig *models.ExpansionSignal) error
	ListSignals(ctx context.Context, tenantID string) ([]*models.ExpansionSignal, error)
}

// DetectorConfig represents expansion detector configuration
type DetectorConfig struct {
	// UsageThreshold is the plan-limit fraction that qualifies as high usage
	UsageThreshold float64 `json:"usage_threshold" yaml:"usage_threshold"`

	// ConsecutivePeriods is how many consecutive high-usage periods
	// must accumulate before a usage_limit signal fires
	ConsecutivePeriods int `json:"consecutive_periods" yaml:"consecutive_periods"`
}

// DefaultDetectorConfig returns default detector configuration
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		UsageThreshold:     0.9,
		ConsecutivePeriods: 2,
	}
}

// Detector scans tenants for upsell opportunities
type Detector struct {
	config    DetectorConfig
	directory tenant.Directory
	feed      facts.Feed
	catalog   *billing.Catalog
	store     SignalStore
	sink      events.Sink
}

// NewDetector creates a new expansion signal detector
func NewDetector(
	config DetectorConfig,
	directory tenant.Directory,
	feed facts.Feed,
	catalog *billing.Catalog,
	store SignalStore,
	sink events.Sink,
) *Detector {
	return &Detector{
		config:    config,
		directory: directory,
		feed:      feed,
		catalog:   catalog,
		store:     store,
		sink:      sink,
	}
}

// Scan evaluates one tenant and returns the created signal, or nil
// when no threshold is crossed or an open signal of the same type
// already exists.
func (d *Detector) Scan(ctx context.Context, tenantID string) (*models.ExpansionSignal, error) {
	t, err := d.directory.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant %s: %w", tenantID, err)
	}

	tenantFacts, err := d.feed.GetFacts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get facts for tenant %s: %w", tenantID, err)
	}

	signalType, crossed := d.evaluate(tenantFacts)
	if !crossed {
		return nil, nil
	}

	// Dedup: an open signal of the same type blocks re-creation
	existing, err := d.store.FindOpenSignal(ctx, tenantID, signalType)
	if err != nil {
		return nil, fmt.Errorf("failed to check open signals for tenant %s: %w", tenantID, err)
	}
	if existing != nil {
		return nil, nil
	}

	recommended, ok := d.catalog.NextTier(t.Plan)
	if !ok {
		// Already on the top tier, nothing to upsell
		return nil, nil
	}

	potentialARR, err := d.catalog.AnnualDeltaCents(t.Plan, recommended.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to price upsell for tenant %s: %w", tenantID, err)
	}

	sig := &models.ExpansionSignal{
		SignalID:        uuid.New().String(),
		TenantID:        tenantID,
		SignalType:      signalType,
		CurrentPlan:     t.Plan,
		RecommendedPlan: recommended.ID,
		PotentialARR:    potentialARR,
		Status:          models.ExpansionNew,
		DetectedAt:      time.Now().UTC(),
	}

	if err := d.store.CreateSignal(ctx, sig); err != nil {
		return nil, fmt.Errorf("failed to persist expansion signal for tenant %s: %w", tenantID, err)
	}

	event := models.NewRetentionEvent(
		models.EventTypeExpansionDetected,
		models.EventSeverityInfo,
		tenantID,
		"expansion-detector",
		fmt.Sprintf("%s signal: recommend %s (potential ARR %d cents)", signalType, recommended.ID, potentialARR),
	)
	event.Metadata = map[string]interface{}{
		"signal_id":        sig.SignalID,
		"signal_type":      string(signalType),
		"current_plan":     t.Plan,
		"recommended_plan": recommended.ID,
		"potential_arr":    potentialARR,
	}
	if err := d.sink.Publish(ctx, events.TopicExpansionSignals, event); err != nil {
		log.Printf("Failed to publish expansion signal event for tenant %s: %v", tenantID, err)
	}

	return sig, nil
}

// ScanAll scans every active tenant and returns the count of signals
// created. Per-tenant failures are logged and skipped.
func (d *Detector) ScanAll(ctx context.Context) (int, error) {
	tenants, err := d.directory.ListActiveTenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tenants: %w", err)
	}

	created := 0
	for _, t := range tenants {
		sig, err := d.Scan(ctx, t.ID)
		if err != nil {
			log.Printf("Failed to scan tenant %s for expansion: %v", t.ID, err)
			continue
		}
		if sig != nil {
			created++
		}
	}
	return created, nil
}

// UpdateStatus applies an operator-driven status transition:
// new -> contacted -> {won, lost, deferred}.
func (d *Detector) UpdateStatus(ctx context.Context, signalID string, status models.ExpansionStatus) (*models.ExpansionSignal, error) {
	sig, err := d.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransitionExpansion(sig.Status, status) {
		return nil, fmt.Errorf("%w: cannot move expansion signal from %s to %s", models.ErrConflict, sig.Status, status)
	}

	sig.Status = status
	if err := d.store.UpdateSignal(ctx, sig); err != nil {
		return nil, fmt.Errorf("failed to update expansion signal %s: %w", signalID, err)
	}
	return sig, nil
}

// ListSignals returns signals, optionally filtered by tenant.
func (d *Detector) ListSignals(ctx context.Context, tenantID string) ([]*models.ExpansionSignal, error) {
	return d.store.ListSignals(ctx, tenantID)
}

// evaluate checks the upsell thresholds in priority order.
func (d *Detector) evaluate(f *models.TenantFacts) (models.ExpansionSignalType, bool) {
	if f.PlanLimitUnits > 0 &&
		f.PlanUsageRatio() >= d.config.UsageThreshold &&
		f.HighUsagePeriods >= d.config.ConsecutivePeriods {
		return models.SignalUsageLimit, true
	}

	if f.SeatLimit > 0 && f.SeatsUsed >= f.SeatLimit {
		return models.SignalSeatExhausted, true
	}

	return "", false
}
