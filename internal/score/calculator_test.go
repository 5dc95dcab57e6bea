package score

import (
	"context"
	"fmt"
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

type stubNps struct {
	score *int
	err   error
}

func (s *stubNps) GetScore(ctx context.Context, tenantID string) (*int, error) {
	return s.score, s.err
}

type calcFixture struct {
	calculator *Calculator
	directory  *tenant.MemoryDirectory
	source     *facts.MemorySource
	profiles   *profile.MemoryStore
	store      *memstore.Store
	nps        *stubNps
}

func newCalcFixture(t *testing.T, config CalculatorConfig) *calcFixture {
	t.Helper()

	f := &calcFixture{
		directory: tenant.NewMemoryDirectory(),
		source:    facts.NewMemorySource(),
		profiles:  profile.NewMemoryStore(),
		store:     memstore.New(),
		nps:       &stubNps{},
	}
	f.calculator = NewCalculator(config, f.directory, f.source, f.profiles,
		f.store, f.store, f.nps, events.NewLogSink())
	return f
}

func (f *calcFixture) addTenant(id, vertical string) {
	f.directory.Put(&tenant.Tenant{
		ID:       id,
		Name:     id,
		Vertical: vertical,
		Status:   tenant.TenantStatusActive,
	})
}

func flatCalendar() []models.MonthEntry {
	entries := make([]models.MonthEntry, 0, 12)
	for m := time.January; m <= time.December; m++ {
		entries = append(entries, models.MonthEntry{Month: m, RiskLevel: models.SeasonalRiskLow})
	}
	return entries
}

func TestCalculateSubScoresAndOverall(t *testing.T) {
	f := newCalcFixture(t, DefaultCalculatorConfig())
	ctx := context.Background()

	require.NoError(t, f.profiles.SaveProfile(ctx, &models.RetentionProfile{
		VerticalID: "saas",
		HealthWeights: map[string]int{
			"engagement": 20, "adoption": 20, "satisfaction": 20,
			"support": 20, "growth": 20,
		},
		SeasonalityCalendar: flatCalendar(),
		CriticalFeatures:    []string{"reports", "api", "sso", "exports"},
		MaxInactivityDays:   30,
	}))

	f.addTenant("t-1", "saas")
	f.source.SetFacts("t-1", &models.TenantFacts{
		TenantID:       "t-1",
		ActiveDays:     27,
		PeriodDays:     30,
		LastActivityAt: time.Now().UTC().Add(-24 * time.Hour),
		FeaturesUsed: map[string]bool{
			"reports": true, "api": true, "sso": true,
		},
		OpenTickets:      1,
		MRRChangePercent: 10,
	})
	nps := 60
	f.nps.score = &nps

	score, err := f.calculator.Calculate(ctx, "t-1")
	require.NoError(t, err)

	assert.Equal(t, 90, score.Engagement)
	assert.Equal(t, 75, score.Adoption)
	assert.Equal(t, 80, score.Satisfaction)
	assert.Equal(t, 90, score.Support)
	assert.Equal(t, 60, score.Growth)

	// Equal weights: (90+75+80+90+60)/5 = 79.
	assert.Equal(t, 79, score.OverallScore)
	assert.Equal(t, models.HealthNeutral, score.Category)
	assert.Equal(t, models.TrendStable, score.Trend)

	// The run is persisted.
	latest, err := f.store.LatestScore(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 79, latest.OverallScore)
}

func TestCalculateFallsBackToEqualWeights(t *testing.T) {
	f := newCalcFixture(t, DefaultCalculatorConfig())
	ctx := context.Background()

	// No profile for the vertical: equal weights, no critical
	// features, default inactivity tolerance.
	f.addTenant("t-1", "unknown-vertical")
	f.source.SetFacts("t-1", &models.TenantFacts{
		TenantID:       "t-1",
		ActiveDays:     30,
		PeriodDays:     30,
		LastActivityAt: time.Now().UTC(),
		OpenTickets:    0,
	})

	score, err := f.calculator.Calculate(ctx, "t-1")
	require.NoError(t, err)

	assert.Equal(t, 100, score.Engagement)
	assert.Equal(t, 100, score.Adoption, "no critical features configured")
	assert.Equal(t, 50, score.Satisfaction, "no NPS responses")
	assert.Equal(t, 100, score.Support)
	assert.Equal(t, 50, score.Growth)
	assert.Equal(t, 80, score.OverallScore)
	assert.Equal(t, models.HealthHealthy, score.Category)
}

func TestEngagementZeroedAfterInactivity(t *testing.T) {
	f := newCalcFixture(t, DefaultCalculatorConfig())
	ctx := context.Background()

	f.addTenant("t-1", "unknown-vertical")
	f.source.SetFacts("t-1", &models.TenantFacts{
		TenantID:   "t-1",
		ActiveDays: 20,
		PeriodDays: 30,
		// Past the 30-day default tolerance.
		LastActivityAt: time.Now().UTC().AddDate(0, 0, -45),
	})

	score, err := f.calculator.Calculate(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 0, score.Engagement)
}

func TestTrendAgainstPreviousScore(t *testing.T) {
	config := DefaultCalculatorConfig()
	config.MinInterval = 0
	f := newCalcFixture(t, config)
	ctx := context.Background()

	f.addTenant("t-1", "unknown-vertical")
	f.source.SetFacts("t-1", &models.TenantFacts{
		TenantID:       "t-1",
		ActiveDays:     15,
		PeriodDays:     30,
		LastActivityAt: time.Now().UTC(),
	})

	first, err := f.calculator.Calculate(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, models.TrendStable, first.Trend, "first run has no prior record")

	// Bump activity enough to move the overall by more than the
	// stability delta.
	f.source.SetFacts("t-1", &models.TenantFacts{
		TenantID:       "t-1",
		ActiveDays:     30,
		PeriodDays:     30,
		LastActivityAt: time.Now().UTC(),
	})
	second, err := f.calculator.Calculate(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, models.TrendImproving, second.Trend)

	// Within the delta the trend reads stable.
	third, err := f.calculator.Calculate(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, models.TrendStable, third.Trend)
}

func TestRunScheduledCalculationIsolatesFailures(t *testing.T) {
	config := DefaultCalculatorConfig()
	config.WorkerCount = 2
	f := newCalcFixture(t, config)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("t-%d", i)
		f.addTenant(id, "unknown-vertical")
		f.source.SetFacts(id, &models.TenantFacts{
			TenantID:       id,
			ActiveDays:     10,
			PeriodDays:     30,
			LastActivityAt: time.Now().UTC(),
		})
	}
	// No facts for this tenant: its calculation fails and is skipped.
	f.addTenant("t-broken", "unknown-vertical")

	processed, err := f.calculator.RunScheduledCalculation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, processed)

	_, err = f.store.LatestScore(ctx, "t-broken")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRunScheduledCalculationMinInterval(t *testing.T) {
	f := newCalcFixture(t, DefaultCalculatorConfig())
	ctx := context.Background()

	f.addTenant("t-1", "unknown-vertical")
	f.source.SetFacts("t-1", &models.TenantFacts{
		TenantID:       "t-1",
		ActiveDays:     10,
		PeriodDays:     30,
		LastActivityAt: time.Now().UTC(),
	})

	processed, err := f.calculator.RunScheduledCalculation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// Re-running inside the window is a no-op, not an error.
	processed, err = f.calculator.RunScheduledCalculation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)

	history, err := f.store.ScoreHistory(ctx, "t-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestWeightedOverallHealthyBand(t *testing.T) {
	score := &models.HealthScore{
		Engagement:   90,
		Adoption:     85,
		Satisfaction: 88,
		Support:      92,
		Growth:       80,
	}

	// Equal weights: (90+85+88+92+80)/5 = 87.
	overall := weightedOverall(score, models.DefaultHealthWeights())
	assert.Equal(t, 87, overall)
	assert.Equal(t, models.HealthHealthy, models.CategoryForScore(overall))
}
