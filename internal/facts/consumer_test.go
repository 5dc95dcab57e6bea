package facts

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retainly/internal/tenant"
	"github.com/retainly/pkg/models"
)

func TestHandleUpsertsTenantAndFacts(t *testing.T) {
	source := NewMemorySource()
	directory := tenant.NewMemoryDirectory()
	consumer := &Consumer{source: source, registry: directory}
	ctx := context.Background()

	payload, err := json.Marshal(factUpdate{
		TenantID: "t-1",
		Tenant: &tenantUpdate{
			Name:     "Acme Corp",
			Plan:     "growth",
			Vertical: "saas",
		},
		Facts: models.TenantFacts{TenantID: "t-1", ActiveDays: 20, PeriodDays: 30},
	})
	require.NoError(t, err)

	consumer.handle(payload)

	active, err := directory.ListActiveTenants(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "t-1", active[0].ID)
	assert.Equal(t, "growth", active[0].Plan)
	assert.Equal(t, "saas", active[0].Vertical)
	// Status defaults to active when the pipeline omits it.
	assert.Equal(t, tenant.TenantStatusActive, active[0].Status)

	stored, err := source.GetFacts(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 20, stored.ActiveDays)
}

func TestHandleSuspendedTenantLeavesActiveList(t *testing.T) {
	source := NewMemorySource()
	directory := tenant.NewMemoryDirectory()
	consumer := &Consumer{source: source, registry: directory}
	ctx := context.Background()

	directory.Put(&tenant.Tenant{ID: "t-1", Status: tenant.TenantStatusActive})

	payload, err := json.Marshal(factUpdate{
		TenantID: "t-1",
		Tenant:   &tenantUpdate{Status: string(tenant.TenantStatusSuspended)},
		Facts:    models.TenantFacts{TenantID: "t-1"},
	})
	require.NoError(t, err)

	consumer.handle(payload)

	active, err := directory.ListActiveTenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestHandleSkipsMalformedMessages(t *testing.T) {
	source := NewMemorySource()
	directory := tenant.NewMemoryDirectory()
	consumer := &Consumer{source: source, registry: directory}
	ctx := context.Background()

	consumer.handle([]byte("not json"))
	consumer.handle([]byte(`{"facts":{"active_days":5}}`))

	active, err := directory.ListActiveTenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
