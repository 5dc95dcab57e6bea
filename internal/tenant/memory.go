package tenant

import (
	"context"
	"fmt"
	"sync"

	"github.com/retainly/pkg/models"
)

// MemoryDirectory is an in-memory Directory used for development and
// tests. Production deployments point the engine at the platform's
// tenant service instead.
type MemoryDirectory struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{tenants: make(map[string]*Tenant)}
}

// Put registers or replaces a tenant.
func (d *MemoryDirectory) Put(t *Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := *t
	d.tenants[t.ID] = &copied
}

func (d *MemoryDirectory) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.tenants[id]
	if !ok {
		return nil, fmt.Errorf("%w: tenant %s", models.ErrNotFound, id)
	}
	copied := *t
	return &copied, nil
}

func (d *MemoryDirectory) ListActiveTenants(ctx context.Context) ([]*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	active := make([]*Tenant, 0, len(d.tenants))
	for _, t := range d.tenants {
		if t.Status == TenantStatusActive {
			copied := *t
			active = append(active, &copied)
		}
	}
	return active, nil
}
