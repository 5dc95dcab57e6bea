package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retainly/internal/billing"
	"github.com/retainly/internal/churn"
	"github.com/retainly/internal/events"
	"github.com/retainly/internal/expansion"
	"github.com/retainly/internal/facts"
	"github.com/retainly/internal/memstore"
	"github.com/retainly/internal/playbook"
	"github.com/retainly/internal/profile"
	"github.com/retainly/internal/score"
	"github.com/retainly/internal/tenant"
	"github.com/retainly/pkg/models"
)

type sweepFixture struct {
	scheduler *Scheduler
	directory *tenant.MemoryDirectory
	source    *facts.MemorySource
	profiles  *profile.MemoryStore
	store     *memstore.Store
	engine    *playbook.Engine
}

type noNps struct{}

func (noNps) GetScore(ctx context.Context, tenantID string) (*int, error) { return nil, nil }

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()

	f := &sweepFixture{
		directory: tenant.NewMemoryDirectory(),
		source:    facts.NewMemorySource(),
		profiles:  profile.NewMemoryStore(),
		store:     memstore.New(),
	}
	sink := events.NewLogSink()

	calculator := score.NewCalculator(score.DefaultCalculatorConfig(), f.directory,
		f.source, f.profiles, f.store, f.store, noNps{}, sink)
	predictor := churn.NewPredictor(churn.DefaultPredictorConfig(), f.directory,
		f.source, f.profiles, f.store, f.store, sink)
	f.engine = playbook.NewEngine(f.store, f.store, sink)
	detector := expansion.NewDetector(expansion.DefaultDetectorConfig(), f.directory,
		f.source, billing.DefaultCatalog(), f.store, sink)

	config := DefaultSchedulerConfig()
	config.DefaultPlaybookID = "pb-save"
	f.scheduler = NewScheduler(config, f.directory, f.profiles, calculator,
		predictor, f.engine, detector, nil)

	require.NoError(t, f.engine.SaveDefinition(context.Background(), &models.PlaybookDefinition{
		PlaybookID: "pb-save",
		Name:       "Save play",
		Status:     models.PlaybookActive,
		Steps:      []models.PlaybookStep{{StepIndex: 0, Action: "email_csm_intro"}},
	}))
	return f
}

func fullCalendar() []models.MonthEntry {
	entries := make([]models.MonthEntry, 0, 12)
	for m := time.January; m <= time.December; m++ {
		entries = append(entries, models.MonthEntry{Month: m, RiskLevel: models.SeasonalRiskLow})
	}
	return entries
}

// riskProfile weights the sub-scores so a fully inactive, past-due
// tenant lands deep in the critical band.
func riskProfile(overrides map[string]string) *models.RetentionProfile {
	return &models.RetentionProfile{
		VerticalID: "saas",
		HealthWeights: map[string]int{
			"engagement": 30, "adoption": 0, "satisfaction": 20,
			"support": 30, "growth": 20,
		},
		SeasonalityCalendar: fullCalendar(),
		ChurnRiskSignals: []models.ChurnSignal{
			{SignalID: churn.SignalPaymentIssue, Weight: 1},
		},
		MaxInactivityDays: 30,
		PlaybookOverrides: overrides,
	}
}

func decliningFacts() *models.TenantFacts {
	return &models.TenantFacts{
		ActiveDays:       0,
		PeriodDays:       30,
		LastActivityAt:   time.Now().UTC().Add(-24 * time.Hour),
		OpenTickets:      10,
		BillingStatus:    models.BillingPastDue,
		MRRChangePercent: -50,
	}
}

func TestRunHealthSweepTriggersPlaybook(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	require.NoError(t, f.profiles.SaveProfile(ctx, riskProfile(nil)))
	f.directory.Put(&tenant.Tenant{ID: "t-risky", Vertical: "saas", Status: tenant.TenantStatusActive})
	f.source.SetFacts("t-risky", decliningFacts())

	processed, err := f.scheduler.RunHealthSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	prediction, err := f.store.LatestPrediction(ctx, "t-risky")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, urgencyRank[prediction.InterventionUrgency], urgencyRank[models.UrgencyHigh])

	executions, err := f.engine.ListExecutions(ctx, "t-risky")
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, "pb-save", executions[0].PlaybookID)
}

func TestRunHealthSweepAlreadyActiveIsSteadyState(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	require.NoError(t, f.profiles.SaveProfile(ctx, riskProfile(nil)))
	f.directory.Put(&tenant.Tenant{ID: "t-risky", Vertical: "saas", Status: tenant.TenantStatusActive})
	f.source.SetFacts("t-risky", decliningFacts())

	_, err := f.scheduler.RunHealthSweep(ctx)
	require.NoError(t, err)

	// The second sweep re-predicts but must not start a second
	// execution while the first is still running.
	_, err = f.scheduler.RunHealthSweep(ctx)
	require.NoError(t, err)

	executions, err := f.engine.ListExecutions(ctx, "t-risky")
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func TestRunHealthSweepSkipsHealthyTenants(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	f.directory.Put(&tenant.Tenant{ID: "t-fine", Vertical: "unknown-vertical", Status: tenant.TenantStatusActive})
	f.source.SetFacts("t-fine", &models.TenantFacts{
		ActiveDays:     30,
		PeriodDays:     30,
		LastActivityAt: time.Now().UTC(),
	})

	processed, err := f.scheduler.RunHealthSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	executions, err := f.engine.ListExecutions(ctx, "t-fine")
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestResolvePlaybookIDHonorsVerticalOverride(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	require.NoError(t, f.profiles.SaveProfile(ctx, riskProfile(map[string]string{
		string(models.UrgencyCritical): "pb-whiteglove",
	})))
	require.NoError(t, f.engine.SaveDefinition(ctx, &models.PlaybookDefinition{
		PlaybookID: "pb-whiteglove",
		Status:     models.PlaybookActive,
		Steps:      []models.PlaybookStep{{StepIndex: 0, Action: "call_founder"}},
	}))

	f.directory.Put(&tenant.Tenant{ID: "t-risky", Vertical: "saas", Status: tenant.TenantStatusActive})
	f.source.SetFacts("t-risky", decliningFacts())

	_, err := f.scheduler.RunHealthSweep(ctx)
	require.NoError(t, err)

	executions, err := f.engine.ListExecutions(ctx, "t-risky")
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, "pb-whiteglove", executions[0].PlaybookID)
}

func TestStartAndStop(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	require.NoError(t, f.scheduler.Start(ctx))
	assert.Error(t, f.scheduler.Start(ctx), "double start is rejected")

	f.scheduler.Stop()
	// Stop is idempotent.
	f.scheduler.Stop()

	require.NoError(t, f.scheduler.Start(ctx))
	f.scheduler.Stop()
}
