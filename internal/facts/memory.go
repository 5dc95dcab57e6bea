package facts

import (
	"context"
	"fmt"
	"sync"

	"github.com/retainly/pkg/models"
)

// MemorySource holds the latest facts snapshot per tenant. The Kafka
// consumer keeps it current; sweeps read it.
type MemorySource struct {
	mu    sync.RWMutex
	facts map[string]*models.TenantFacts
}

// NewMemorySource creates an empty facts source
func NewMemorySource() *MemorySource {
	return &MemorySource{facts: make(map[string]*models.TenantFacts)}
}

// SetFacts replaces a tenant's facts snapshot
func (m *MemorySource) SetFacts(tenantID string, f *models.TenantFacts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := *f
	if f.FeaturesUsed != nil {
		snapshot.FeaturesUsed = make(map[string]bool, len(f.FeaturesUsed))
		for k, v := range f.FeaturesUsed {
			snapshot.FeaturesUsed[k] = v
		}
	}
	m.facts[tenantID] = &snapshot
}

// GetFacts returns the tenant's current facts snapshot
func (m *MemorySource) GetFacts(ctx context.Context, tenantID string) (*models.TenantFacts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.facts[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: no facts for tenant %s", models.ErrNotFound, tenantID)
	}

	snapshot := *f
	if f.FeaturesUsed != nil {
		snapshot.FeaturesUsed = make(map[string]bool, len(f.FeaturesUsed))
		for k, v := range f.FeaturesUsed {
			snapshot.FeaturesUsed[k] = v
		}
	}
	return &snapshot, nil
}
