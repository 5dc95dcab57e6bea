package facts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retainly/pkg/models"
)

func TestMemorySourceRoundTrip(t *testing.T) {
	source := NewMemorySource()
	ctx := context.Background()

	_, err := source.GetFacts(ctx, "t-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	original := &models.TenantFacts{
		TenantID:     "t-1",
		ActiveDays:   12,
		PeriodDays:   30,
		FeaturesUsed: map[string]bool{"reports": true},
	}
	source.SetFacts("t-1", original)

	// Mutating the caller's copy must not leak into the source.
	original.ActiveDays = 0
	original.FeaturesUsed["reports"] = false

	got, err := source.GetFacts(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 12, got.ActiveDays)
	assert.True(t, got.FeaturesUsed["reports"])

	// And neither must mutating the returned copy.
	got.FeaturesUsed["api"] = true
	again, err := source.GetFacts(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, again.FeaturesUsed["api"])
}

func TestPlanUsageRatio(t *testing.T) {
	f := &models.TenantFacts{PlanUsageUnits: 9000, PlanLimitUnits: 10000}
	assert.InDelta(t, 0.9, f.PlanUsageRatio(), 1e-9)

	unmetered := &models.TenantFacts{PlanUsageUnits: 9000}
	assert.Equal(t, 0.0, unmetered.PlanUsageRatio())
}
