// Package memstore implements the engine's repositories in memory. It
// is the authority for the storage invariants in development and tests:
// append-only health history, one churn prediction per tenant-month
// with elapsed months immutable, and the at-most-one-active playbook
// execution check-and-create performed under a single lock.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/retainly/pkg/models"
)

// Store holds every engine collection behind one RWMutex
type Store struct {
	mu sync.RWMutex

	scores      map[string][]*models.HealthScore
	predictions map[string]map[string]*models.ChurnPrediction

	definitions map[string]*models.PlaybookDefinition
	executions  map[string]*models.PlaybookExecution

	signals map[string]*models.ExpansionSignal

	responses map[string][]*models.NpsResponse
	lastSent  map[string]time.Time
}

func New() *Store {
	return &Store{
		scores:      make(map[string][]*models.HealthScore),
		predictions: make(map[string]map[string]*models.ChurnPrediction),
		definitions: make(map[string]*models.PlaybookDefinition),
		executions:  make(map[string]*models.PlaybookExecution),
		signals:     make(map[string]*models.ExpansionSignal),
		responses:   make(map[string][]*models.NpsResponse),
		lastSent:    make(map[string]time.Time),
	}
}

// Health score history

// SaveScore appends a new health score record. History is never
// mutated after the fact.
func (s *Store) SaveScore(ctx context.Context, score *models.HealthScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *score
	s.scores[score.TenantID] = append(s.scores[score.TenantID], &copied)
	return nil
}

func (s *Store) LatestScore(ctx context.Context, tenantID string) (*models.HealthScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.scores[tenantID]
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: no health score for tenant %s", models.ErrNotFound, tenantID)
	}
	copied := *history[len(history)-1]
	return &copied, nil
}

// ScoreHistory returns records newest first, at most limit entries
// (all when limit <= 0).
func (s *Store) ScoreHistory(ctx context.Context, tenantID string, limit int) ([]*models.HealthScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.scores[tenantID]
	result := make([]*models.HealthScore, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		copied := *history[i]
		result = append(result, &copied)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Churn predictions

// UpsertPrediction creates or overwrites the prediction for the
// record's tenant and month. Months that have already elapsed are
// immutable.
func (s *Store) UpsertPrediction(ctx context.Context, p *models.ChurnPrediction) error {
	currentMonth := time.Now().UTC().Format(models.PredictionMonthLayout)
	if p.PredictionMonth < currentMonth {
		return fmt.Errorf("%w: prediction month %s has elapsed", models.ErrConflict, p.PredictionMonth)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byMonth, ok := s.predictions[p.TenantID]
	if !ok {
		byMonth = make(map[string]*models.ChurnPrediction)
		s.predictions[p.TenantID] = byMonth
	}
	copied := *p
	byMonth[p.PredictionMonth] = &copied
	return nil
}

func (s *Store) LatestPrediction(ctx context.Context, tenantID string) (*models.ChurnPrediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byMonth := s.predictions[tenantID]
	if len(byMonth) == 0 {
		return nil, fmt.Errorf("%w: no churn prediction for tenant %s", models.ErrNotFound, tenantID)
	}

	latest := ""
	for month := range byMonth {
		if month > latest {
			latest = month
		}
	}
	copied := *byMonth[latest]
	return &copied, nil
}

// PredictionHistory returns predictions newest month first, at most
// limit entries (all when limit <= 0).
func (s *Store) PredictionHistory(ctx context.Context, tenantID string, limit int) ([]*models.ChurnPrediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byMonth := s.predictions[tenantID]
	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	result := make([]*models.ChurnPrediction, 0, len(months))
	for _, month := range months {
		copied := *byMonth[month]
		result = append(result, &copied)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Playbook definitions

func (s *Store) SaveDefinition(ctx context.Context, def *models.PlaybookDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *def
	copied.Steps = append([]models.PlaybookStep(nil), def.Steps...)
	s.definitions[def.PlaybookID] = &copied
	return nil
}

func (s *Store) GetDefinition(ctx context.Context, playbookID string) (*models.PlaybookDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[playbookID]
	if !ok {
		return nil, fmt.Errorf("%w: playbook %s", models.ErrNotFound, playbookID)
	}
	copied := *def
	copied.Steps = append([]models.PlaybookStep(nil), def.Steps...)
	return &copied, nil
}

func (s *Store) ListDefinitions(ctx context.Context) ([]*models.PlaybookDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.PlaybookDefinition, 0, len(s.definitions))
	for _, def := range s.definitions {
		copied := *def
		copied.Steps = append([]models.PlaybookStep(nil), def.Steps...)
		result = append(result, &copied)
	}
	return result, nil
}

func (s *Store) DeleteDefinition(ctx context.Context, playbookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[playbookID]; !ok {
		return fmt.Errorf("%w: playbook %s", models.ErrNotFound, playbookID)
	}
	delete(s.definitions, playbookID)
	return nil
}

// Playbook executions

// CreateExecution stores a new execution unless a non-terminal one
// already exists for the same (playbook, tenant) pair. The check and
// the create happen under one lock so concurrent callers cannot both
// succeed.
func (s *Store) CreateExecution(ctx context.Context, exec *models.PlaybookExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.executions {
		if existing.PlaybookID == exec.PlaybookID &&
			existing.TenantID == exec.TenantID &&
			!existing.Status.IsTerminal() {
			return fmt.Errorf("%w: playbook %s already has an active execution for tenant %s",
				models.ErrConflict, exec.PlaybookID, exec.TenantID)
		}
	}

	copied := *exec
	copied.Overrides = append([]models.OverrideRecord(nil), exec.Overrides...)
	s.executions[exec.ExecutionID] = &copied
	return nil
}

func (s *Store) GetExecution(ctx context.Context, executionID string) (*models.PlaybookExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: execution %s", models.ErrNotFound, executionID)
	}
	copied := *exec
	copied.Overrides = append([]models.OverrideRecord(nil), exec.Overrides...)
	return &copied, nil
}

func (s *Store) UpdateExecution(ctx context.Context, exec *models.PlaybookExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[exec.ExecutionID]; !ok {
		return fmt.Errorf("%w: execution %s", models.ErrNotFound, exec.ExecutionID)
	}
	copied := *exec
	copied.Overrides = append([]models.OverrideRecord(nil), exec.Overrides...)
	s.executions[exec.ExecutionID] = &copied
	return nil
}

func (s *Store) ListExecutions(ctx context.Context, tenantID string) ([]*models.PlaybookExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.PlaybookExecution, 0)
	for _, exec := range s.executions {
		if tenantID != "" && exec.TenantID != tenantID {
			continue
		}
		copied := *exec
		copied.Overrides = append([]models.OverrideRecord(nil), exec.Overrides...)
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result, nil
}

// DueExecutions returns running executions whose next step is due.
func (s *Store) DueExecutions(ctx context.Context, now time.Time) ([]*models.PlaybookExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.PlaybookExecution, 0)
	for _, exec := range s.executions {
		if exec.Status == models.ExecutionRunning && !exec.NextStepAt.After(now) {
			copied := *exec
			copied.Overrides = append([]models.OverrideRecord(nil), exec.Overrides...)
			result = append(result, &copied)
		}
	}
	return result, nil
}

// Expansion signals

// FindOpenSignal returns the open (new or contacted) signal of the
// given type for a tenant, or nil when none exists.
func (s *Store) FindOpenSignal(ctx context.Context, tenantID string, signalType models.ExpansionSignalType) (*models.ExpansionSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sig := range s.signals {
		if sig.TenantID == tenantID && sig.SignalType == signalType && sig.IsOpen() {
			copied := *sig
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateSignal(ctx context.Context, sig *models.ExpansionSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *sig
	s.signals[sig.SignalID] = &copied
	return nil
}

func (s *Store) GetSignal(ctx context.Context, signalID string) (*models.ExpansionSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.signals[signalID]
	if !ok {
		return nil, fmt.Errorf("%w: expansion signal %s", models.ErrNotFound, signalID)
	}
	copied := *sig
	return &copied, nil
}

func (s *Store) UpdateSignal(ctx context.Context, sig *models.ExpansionSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.signals[sig.SignalID]; !ok {
		return fmt.Errorf("%w: expansion signal %s", models.ErrNotFound, sig.SignalID)
	}
	copied := *sig
	s.signals[sig.SignalID] = &copied
	return nil
}

func (s *Store) ListSignals(ctx context.Context, tenantID string) ([]*models.ExpansionSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.ExpansionSignal, 0)
	for _, sig := range s.signals {
		if tenantID != "" && sig.TenantID != tenantID {
			continue
		}
		copied := *sig
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DetectedAt.Before(result[j].DetectedAt)
	})
	return result, nil
}

// NPS responses and cooldown tracking

func (s *Store) SaveResponse(ctx context.Context, r *models.NpsResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *r
	s.responses[r.TenantID] = append(s.responses[r.TenantID], &copied)
	return nil
}

// ListResponses returns responses submitted in [from, to), oldest
// first. Zero times disable the respective bound.
func (s *Store) ListResponses(ctx context.Context, tenantID string, from, to time.Time) ([]*models.NpsResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.NpsResponse, 0)
	for _, r := range s.responses[tenantID] {
		if !from.IsZero() && r.SubmittedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !r.SubmittedAt.Before(to) {
			continue
		}
		copied := *r
		result = append(result, &copied)
	}
	return result, nil
}

// LastSent returns the last survey-prompt timestamp for a tenant.
func (s *Store) LastSent(ctx context.Context, tenantID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.lastSent[tenantID]
	return t, ok, nil
}

func (s *Store) SetLastSent(ctx context.Context, tenantID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSent[tenantID] = at
	return nil
}
