package churn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retainly/internal/events"
	"github.com/retainly/internal/facts"
	"github.com/retainly/internal/memstore"
	"github.com/retainly/internal/profile"
	"github.com/retainly/internal/tenant"
	"github.com/retainly/pkg/models"
)

type predictorFixture struct {
	predictor *Predictor
	directory *tenant.MemoryDirectory
	source    *facts.MemorySource
	profiles  *profile.MemoryStore
	store     *memstore.Store
}

func newPredictorFixture(t *testing.T) *predictorFixture {
	t.Helper()

	f := &predictorFixture{
		directory: tenant.NewMemoryDirectory(),
		source:    facts.NewMemorySource(),
		profiles:  profile.NewMemoryStore(),
		store:     memstore.New(),
	}
	f.predictor = NewPredictor(DefaultPredictorConfig(), f.directory, f.source,
		f.profiles, f.store, f.store, events.NewLogSink())
	return f
}

func (f *predictorFixture) seedTenant(t *testing.T, vertical string, overall int, tenantFacts *models.TenantFacts) {
	t.Helper()

	f.directory.Put(&tenant.Tenant{
		ID:       "t-1",
		Vertical: vertical,
		Status:   tenant.TenantStatusActive,
	})
	tenantFacts.TenantID = "t-1"
	f.source.SetFacts("t-1", tenantFacts)
	require.NoError(t, f.store.SaveScore(context.Background(), &models.HealthScore{
		TenantID:     "t-1",
		CalculatedAt: time.Now().UTC(),
		OverallScore: overall,
	}))
}

// uniformCalendar applies one adjustment to every month so assertions
// do not depend on the wall-clock month the test runs in.
func uniformCalendar(adjustment float64) []models.MonthEntry {
	entries := make([]models.MonthEntry, 0, 12)
	for m := time.January; m <= time.December; m++ {
		entries = append(entries, models.MonthEntry{
			Month:             m,
			RiskLevel:         models.SeasonalRiskMedium,
			AdjustmentPercent: adjustment,
		})
	}
	return entries
}

func saveProfile(t *testing.T, profiles *profile.MemoryStore, p *models.RetentionProfile) {
	t.Helper()
	if p.HealthWeights == nil {
		p.HealthWeights = models.DefaultHealthWeights()
	}
	if p.SeasonalityCalendar == nil {
		p.SeasonalityCalendar = uniformCalendar(0)
	}
	if p.MaxInactivityDays == 0 {
		p.MaxInactivityDays = 30
	}
	require.NoError(t, profiles.SaveProfile(context.Background(), p))
}

func TestPredictAppliesSeasonalAdjustment(t *testing.T) {
	f := newPredictorFixture(t)
	ctx := context.Background()

	saveProfile(t, f.profiles, &models.RetentionProfile{
		VerticalID:          "ecommerce",
		SeasonalityCalendar: uniformCalendar(25),
	})
	f.seedTenant(t, "ecommerce", 50, &models.TenantFacts{})

	prediction, err := f.predictor.Predict(ctx, "t-1")
	require.NoError(t, err)

	// Empty signal catalog: base is the blended inverse health alone.
	assert.InDelta(t, 0.3, prediction.BaseProbability, 1e-9)
	assert.Equal(t, 25.0, prediction.SeasonalAdjustment)
	assert.InDelta(t, 0.375, prediction.AdjustedProbability, 1e-9)
	assert.Equal(t, models.UrgencyMedium, prediction.InterventionUrgency)
}

func TestPredictWithoutProfile(t *testing.T) {
	f := newPredictorFixture(t)
	ctx := context.Background()

	f.seedTenant(t, "unknown-vertical", 50, &models.TenantFacts{})

	prediction, err := f.predictor.Predict(ctx, "t-1")
	require.NoError(t, err)

	assert.Equal(t, 0.0, prediction.SeasonalAdjustment)
	assert.InDelta(t, 0.3, prediction.BaseProbability, 1e-9)
	assert.InDelta(t, 0.3, prediction.AdjustedProbability, 1e-9)
}

func TestPredictMatchesSignalCatalog(t *testing.T) {
	f := newPredictorFixture(t)
	ctx := context.Background()

	saveProfile(t, f.profiles, &models.RetentionProfile{
		VerticalID: "fintech",
		ChurnRiskSignals: []models.ChurnSignal{
			{SignalID: SignalPaymentIssue, Weight: 1},
		},
	})
	f.seedTenant(t, "fintech", 50, &models.TenantFacts{
		BillingStatus: models.BillingPastDue,
	})

	prediction, err := f.predictor.Predict(ctx, "t-1")
	require.NoError(t, err)

	// base = 0.5*0.6 + 1.0*0.4 = 0.7.
	assert.InDelta(t, 0.7, prediction.BaseProbability, 1e-9)
	assert.Equal(t, models.UrgencyHigh, prediction.InterventionUrgency)
}

func TestPredictIgnoresUnmatchedSignals(t *testing.T) {
	f := newPredictorFixture(t)
	ctx := context.Background()

	saveProfile(t, f.profiles, &models.RetentionProfile{
		VerticalID: "fintech",
		ChurnRiskSignals: []models.ChurnSignal{
			{SignalID: SignalPaymentIssue, Weight: 1},
			{SignalID: SignalUsageDecline, Weight: 1},
		},
	})
	f.seedTenant(t, "fintech", 80, &models.TenantFacts{
		BillingStatus: models.BillingCurrent,
		// One week short of the decline streak threshold.
		ConsecutiveDeclineWeeks: 2,
	})

	prediction, err := f.predictor.Predict(ctx, "t-1")
	require.NoError(t, err)

	// base = 0.2*0.6 + 0*0.4 = 0.12.
	assert.InDelta(t, 0.12, prediction.BaseProbability, 1e-9)
	assert.Equal(t, models.UrgencyNone, prediction.InterventionUrgency)
}

func TestPredictOverwritesCurrentMonth(t *testing.T) {
	f := newPredictorFixture(t)
	ctx := context.Background()

	f.seedTenant(t, "unknown-vertical", 50, &models.TenantFacts{})

	first, err := f.predictor.Predict(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, time.Now().UTC().Format(models.PredictionMonthLayout), first.PredictionMonth)

	// A fresher health score changes the prediction but not the row count.
	require.NoError(t, f.store.SaveScore(ctx, &models.HealthScore{
		TenantID:     "t-1",
		CalculatedAt: time.Now().UTC(),
		OverallScore: 20,
	}))
	second, err := f.predictor.Predict(ctx, "t-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.48, second.BaseProbability, 1e-9)

	history, err := f.store.PredictionHistory(ctx, "t-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.InDelta(t, 0.48, history[0].AdjustedProbability, 1e-9)
}
