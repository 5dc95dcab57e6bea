// Package facts defines the boundary to the usage/billing facts feed.
// The feed is implemented elsewhere in the platform; the engine treats
// it as an opaque read-only source keyed by tenant identifier.
package facts

import (
	"context"

	"github.com/retainly/pkg/models"
)

// Feed is the read-only facts query the engine consumes
type Feed interface {
	GetFacts(ctx context.Context, tenantID string) (*models.TenantFacts, error)
}

// FeedFunc adapts a function to the Feed interface
type FeedFunc func(ctx context.Context, tenantID string) (*models.TenantFacts, error)

func (f FeedFunc) GetFacts(ctx context.Context, tenantID string) (*models.TenantFacts, error) {
	return f(ctx, tenantID)
}
