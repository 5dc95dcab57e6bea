package expansion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retainly/internal/billing"
	"github.com/retainly/internal/events"
	"github.com/retainly/internal/facts"
	"github.com/retainly/internal/memstore"
	"github.com/retainly/internal/tenant"
	"github.com/retainly/pkg/models"
)

type detectorFixture struct {
	detector  *Detector
	directory *tenant.MemoryDirectory
	source    *facts.MemorySource
	store     *memstore.Store
}

func newDetectorFixture(t *testing.T) *detectorFixture {
	t.Helper()

	f := &detectorFixture{
		directory: tenant.NewMemoryDirectory(),
		source:    facts.NewMemorySource(),
		store:     memstore.New(),
	}
	f.detector = NewDetector(DefaultDetectorConfig(), f.directory, f.source,
		billing.DefaultCatalog(), f.store, events.NewLogSink())
	return f
}

func (f *detectorFixture) seedTenant(id, plan string, tenantFacts *models.TenantFacts) {
	f.directory.Put(&tenant.Tenant{
		ID:     id,
		Plan:   plan,
		Status: tenant.TenantStatusActive,
	})
	tenantFacts.TenantID = id
	f.source.SetFacts(id, tenantFacts)
}

func TestScanDetectsUsageLimit(t *testing.T) {
	f := newDetectorFixture(t)
	ctx := context.Background()

	f.seedTenant("t-1", "starter", &models.TenantFacts{
		PlanUsageUnits:   9500,
		PlanLimitUnits:   10000,
		HighUsagePeriods: 2,
	})

	sig, err := f.detector.Scan(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, models.SignalUsageLimit, sig.SignalType)
	assert.Equal(t, "starter", sig.CurrentPlan)
	assert.Equal(t, "growth", sig.RecommendedPlan)
	// 12 * (19900 - 4900) cents.
	assert.Equal(t, int64(180000), sig.PotentialARR)
	assert.Equal(t, models.ExpansionNew, sig.Status)
}

func TestScanRequiresConsecutiveHighUsage(t *testing.T) {
	f := newDetectorFixture(t)
	ctx := context.Background()

	f.seedTenant("t-1", "starter", &models.TenantFacts{
		PlanUsageUnits:   9500,
		PlanLimitUnits:   10000,
		HighUsagePeriods: 1,
	})

	sig, err := f.detector.Scan(ctx, "t-1")
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestScanDetectsSeatExhaustion(t *testing.T) {
	f := newDetectorFixture(t)
	ctx := context.Background()

	f.seedTenant("t-1", "growth", &models.TenantFacts{
		SeatsUsed: 25,
		SeatLimit: 25,
	})

	sig, err := f.detector.Scan(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, models.SignalSeatExhausted, sig.SignalType)
	assert.Equal(t, "scale", sig.RecommendedPlan)
}

func TestScanDedupesOpenSignals(t *testing.T) {
	f := newDetectorFixture(t)
	ctx := context.Background()

	f.seedTenant("t-1", "starter", &models.TenantFacts{
		PlanUsageUnits:   9500,
		PlanLimitUnits:   10000,
		HighUsagePeriods: 3,
	})

	first, err := f.detector.Scan(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.detector.Scan(ctx, "t-1")
	require.NoError(t, err)
	assert.Nil(t, second, "open signal of the same type blocks re-creation")

	// Resolving the signal re-arms detection.
	_, err = f.detector.UpdateStatus(ctx, first.SignalID, models.ExpansionContacted)
	require.NoError(t, err)
	_, err = f.detector.UpdateStatus(ctx, first.SignalID, models.ExpansionLost)
	require.NoError(t, err)

	third, err := f.detector.Scan(ctx, "t-1")
	require.NoError(t, err)
	assert.NotNil(t, third)
}

func TestScanSkipsTopTier(t *testing.T) {
	f := newDetectorFixture(t)
	ctx := context.Background()

	f.seedTenant("t-1", "enterprise", &models.TenantFacts{
		SeatsUsed: 1000,
		SeatLimit: 1000,
	})

	sig, err := f.detector.Scan(ctx, "t-1")
	require.NoError(t, err)
	assert.Nil(t, sig)

	signals, err := f.detector.ListSignals(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestScanAllIsolatesFailures(t *testing.T) {
	f := newDetectorFixture(t)
	ctx := context.Background()

	f.seedTenant("t-1", "starter", &models.TenantFacts{
		PlanUsageUnits:   10000,
		PlanLimitUnits:   10000,
		HighUsagePeriods: 2,
	})
	f.seedTenant("t-2", "growth", &models.TenantFacts{})
	// No facts: scanning this tenant fails and is skipped.
	f.directory.Put(&tenant.Tenant{ID: "t-broken", Plan: "starter", Status: tenant.TenantStatusActive})

	created, err := f.detector.ScanAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newDetectorFixture(t)
	ctx := context.Background()

	f.seedTenant("t-1", "starter", &models.TenantFacts{
		SeatsUsed: 5,
		SeatLimit: 5,
	})
	sig, err := f.detector.Scan(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, sig)

	// new -> won skips the contacted stage.
	_, err = f.detector.UpdateStatus(ctx, sig.SignalID, models.ExpansionWon)
	assert.ErrorIs(t, err, models.ErrConflict)

	contacted, err := f.detector.UpdateStatus(ctx, sig.SignalID, models.ExpansionContacted)
	require.NoError(t, err)
	assert.Equal(t, models.ExpansionContacted, contacted.Status)

	won, err := f.detector.UpdateStatus(ctx, sig.SignalID, models.ExpansionWon)
	require.NoError(t, err)
	assert.Equal(t, models.ExpansionWon, won.Status)

	// Resolved signals are terminal.
	_, err = f.detector.UpdateStatus(ctx, sig.SignalID, models.ExpansionContacted)
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = f.detector.UpdateStatus(ctx, "missing", models.ExpansionContacted)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
