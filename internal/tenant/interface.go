package tenant

import "context"

// Directory defines the read-only tenant lookup the engine consumes
type Directory interface {
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	ListActiveTenants(ctx context.Context) ([]*Tenant, error)
}
