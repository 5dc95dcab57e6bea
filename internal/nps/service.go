// Package nps implements NPS survey collection: cooldown-gated sends,
// response validation, and rolling score/trend computation.
package nps

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/retainly/internal/events"
	"github.com/retainly/pkg/models"
)

// ResponseStore persists survey responses and send timestamps
type ResponseStore interface {
	SaveResponse(ctx context.Context, r *models.NpsResponse) error
	ListResponses(ctx context.Context, tenantID string, from, to time.Time) ([]*models.NpsResponse, error)
	LastSent(ctx context.Context, tenantID string) (time.Time, bool, error)
	SetLastSent(ctx context.Context, tenantID string, at time.Time) error
}

// ServiceConfig represents NPS service configuration
type ServiceConfig struct {
	// CooldownDays is the minimum gap between survey sends per tenant
	CooldownDays int `json:"cooldown_days" yaml:"cooldown_days"`

	// ScoreWindowDays bounds the rolling window used by GetScore
	ScoreWindowDays int `json:"score_window_days" yaml:"score_window_days"`
}

// DefaultServiceConfig returns default NPS configuration
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		CooldownDays:    90,
		ScoreWindowDays: 90,
	}
}

// Service manages NPS surveys for tenants
type Service struct {
	config ServiceConfig
	store  ResponseStore
	sink   events.Sink
	now    func() time.Time
}

// NewService creates a new NPS service
func NewService(config ServiceConfig, store ResponseStore, sink events.Sink) *Service {
	return &Service{
		config: config,
		store:  store,
		sink:   sink,
		now:    time.Now,
	}
}

// CanSend reports whether the tenant is past its survey cooldown.
// Tenants that were never surveyed are always eligible.
func (s *Service) CanSend(ctx context.Context, tenantID string) (bool, error) {
	sentAt, ok, err := s.store.LastSent(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to read last survey send for tenant %s: %w", tenantID, err)
	}
	if !ok {
		return true, nil
	}
	cooldown := time.Duration(s.config.CooldownDays) * 24 * time.Hour
	return s.now().UTC().Sub(sentAt) >= cooldown, nil
}

// MarkSent records a survey send, starting the tenant's cooldown.
// Recording a send does not require a response to ever arrive.
func (s *Service) MarkSent(ctx context.Context, tenantID string) error {
	eligible, err := s.CanSend(ctx, tenantID)
	if err != nil {
		return err
	}
	if !eligible {
		return fmt.Errorf("%w: tenant %s is within survey cooldown", models.ErrConflict, tenantID)
	}
	return s.store.SetLastSent(ctx, tenantID, s.now().UTC())
}

// Collect records a survey response. Scores outside [0, 10] are
// rejected without persisting anything.
func (s *Service) Collect(ctx context.Context, tenantID string, score int, comment string) (*models.NpsResponse, error) {
	if score < 0 || score > 10 {
		return nil, fmt.Errorf("%w: nps score must be between 0 and 10, got %d", models.ErrValidation, score)
	}

	response := &models.NpsResponse{
		ResponseID:  uuid.New().String(),
		TenantID:    tenantID,
		Score:       score,
		Comment:     comment,
		SubmittedAt: s.now().UTC(),
	}

	if err := s.store.SaveResponse(ctx, response); err != nil {
		return nil, fmt.Errorf("failed to save nps response for tenant %s: %w", tenantID, err)
	}

	event := models.NewRetentionEvent(
		models.EventTypeNpsCollected,
		models.EventSeverityInfo,
		tenantID,
		"nps-service",
		fmt.Sprintf("nps response collected: score %d (%s)", score, response.Category()),
	)
	event.Metadata = map[string]interface{}{
		"response_id": response.ResponseID,
		"score":       score,
		"category":    string(response.Category()),
	}
	if err := s.sink.Publish(ctx, events.TopicAlerts, event); err != nil {
		log.Printf("Failed to publish nps event for tenant %s: %v", tenantID, err)
	}

	return response, nil
}

// GetScore computes the rolling NPS over the configured window:
// %promoters - %detractors, rounded to the nearest integer. Returns
// nil when the window holds zero responses.
func (s *Service) GetScore(ctx context.Context, tenantID string) (*int, int, error) {
	to := s.now().UTC()
	from := to.AddDate(0, 0, -s.config.ScoreWindowDays)

	responses, err := s.store.ListResponses(ctx, tenantID, from, to)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list nps responses for tenant %s: %w", tenantID, err)
	}
	if len(responses) == 0 {
		return nil, 0, nil
	}

	score := computeNps(responses)
	return &score, len(responses), nil
}

// GetTrend returns one MonthlyNps entry per calendar month, oldest
// first, covering the trailing months window ending at the current
// month. Months with zero responses carry a nil score.
func (s *Service) GetTrend(ctx context.Context, tenantID string, months int) ([]models.MonthlyNps, error) {
	if months < 1 {
		return nil, fmt.Errorf("%w: trend window must cover at least one month", models.ErrValidation)
	}

	now := s.now().UTC()
	trend := make([]models.MonthlyNps, 0, months)

	for i := months - 1; i >= 0; i-- {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		monthEnd := monthStart.AddDate(0, 1, 0)

		responses, err := s.store.ListResponses(ctx, tenantID, monthStart, monthEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to list nps responses for tenant %s: %w", tenantID, err)
		}

		entry := models.MonthlyNps{
			Month:     monthStart.Format("2006-01"),
			Responses: len(responses),
		}
		if len(responses) > 0 {
			score := computeNps(responses)
			entry.Score = &score
		}
		trend = append(trend, entry)
	}

	return trend, nil
}

// computeNps is %promoters - %detractors over the given responses,
// rounded to the nearest integer.
func computeNps(responses []*models.NpsResponse) int {
	promoters := 0
	detractors := 0
	for _, r := range responses {
		switch r.Category() {
		case models.NpsPromoter:
			promoters++
		case models.NpsDetractor:
			detractors++
		}
	}
	total := float64(len(responses))
	return int(math.Round(float64(promoters)/total*100 - float64(detractors)/total*100))
}
