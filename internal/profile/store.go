// Package profile implements the Retention Profile Store: per-vertical
// scoring configuration, validated at write time and read-only to the
// scoring pipeline. Reads return snapshot copies, so in-flight sweeps
// may finish a cycle on a stale profile without coordination.
package profile

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/retainly/pkg/models"
)

// Store is the profile configuration surface consumed by the engine
type Store interface {
	GetProfile(ctx context.Context, verticalID string) (*models.RetentionProfile, error)
	ListProfiles(ctx context.Context) ([]*models.RetentionProfile, error)
	SaveProfile(ctx context.Context, p *models.RetentionProfile) error
	DeleteProfile(ctx context.Context, verticalID string) error
}

// MemoryStore holds profiles in memory behind a RWMutex. Profile
// mutation is an administrative, low-frequency operation; sweeps read
// snapshots and never block writers for long.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*models.RetentionProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*models.RetentionProfile)}
}

func (s *MemoryStore) GetProfile(ctx context.Context, verticalID string) (*models.RetentionProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[verticalID]
	if !ok {
		return nil, fmt.Errorf("%w: retention profile %s", models.ErrNotFound, verticalID)
	}
	return snapshot(p), nil
}

func (s *MemoryStore) ListProfiles(ctx context.Context) ([]*models.RetentionProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.RetentionProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		result = append(result, snapshot(p))
	}
	return result, nil
}

// SaveProfile validates and stores a profile. Changes take effect on
// the next calculation cycle; there is no retroactive recompute.
func (s *MemoryStore) SaveProfile(ctx context.Context, p *models.RetentionProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := snapshot(p)
	stored.UpdatedAt = time.Now().UTC()
	s.profiles[p.VerticalID] = stored

	log.Printf("Saved retention profile for vertical %s", p.VerticalID)
	return nil
}

func (s *MemoryStore) DeleteProfile(ctx context.Context, verticalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[verticalID]; !ok {
		return fmt.Errorf("%w: retention profile %s", models.ErrNotFound, verticalID)
	}
	delete(s.profiles, verticalID)
	return nil
}

// snapshot deep-copies a profile so callers never share mutable state
// with the store.
func snapshot(p *models.RetentionProfile) *models.RetentionProfile {
	copied := *p

	copied.HealthWeights = make(map[string]int, len(p.HealthWeights))
	for k, v := range p.HealthWeights {
		copied.HealthWeights[k] = v
	}

	copied.SeasonalityCalendar = append([]models.MonthEntry(nil), p.SeasonalityCalendar...)
	copied.ChurnRiskSignals = append([]models.ChurnSignal(nil), p.ChurnRiskSignals...)
	copied.CriticalFeatures = append([]string(nil), p.CriticalFeatures...)

	if p.PlaybookOverrides != nil {
		copied.PlaybookOverrides = make(map[string]string, len(p.PlaybookOverrides))
		for k, v := range p.PlaybookOverrides {
			copied.PlaybookOverrides[k] = v
		}
	}

	return &copied
}
