package models

import (
	"fmt"
	"time"
)

// Sub-score names used as keys in RetentionProfile.HealthWeights.
const (
	SubScoreEngagement   = "engagement"
	SubScoreAdoption     = "adoption"
	SubScoreSatisfaction = "satisfaction"
	SubScoreSupport      = "support"
	SubScoreGrowth       = "growth"
)

// SubScoreNames returns the five sub-score names in canonical order.
func SubScoreNames() []string {
	return []string{
		SubScoreEngagement,
		SubScoreAdoption,
		SubScoreSatisfaction,
		SubScoreSupport,
		SubScoreGrowth,
	}
}

// SeasonalRiskLevel classifies a calendar month's churn risk
type SeasonalRiskLevel string

const (
	SeasonalRiskLow    SeasonalRiskLevel = "low"
	SeasonalRiskMedium SeasonalRiskLevel = "medium"
	SeasonalRiskHigh   SeasonalRiskLevel = "high"
)

// MonthEntry is one month of a vertical's seasonality calendar
type MonthEntry struct {
	Month             time.Month        `json:"month"`
	RiskLevel         SeasonalRiskLevel `json:"risk_level"`
	AdjustmentPercent float64           `json:"adjustment_percent"`
	Label             string            `json:"label,omitempty"`
}

// ChurnSignal describes one churn risk signal tracked for a vertical
type ChurnSignal struct {
	SignalID    string  `json:"signal_id"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// RetentionProfile holds the per-vertical retention configuration.
// Profiles are created and edited by operators and read-only to the
// scoring pipeline; edits take effect on the next calculation cycle.
type RetentionProfile struct {
	VerticalID          string            `json:"vertical_id"`
	Label               string            `json:"label"`
	HealthWeights       map[string]int    `json:"health_weights"`
	SeasonalityCalendar []MonthEntry      `json:"seasonality_calendar"`
	ChurnRiskSignals    []ChurnSignal     `json:"churn_risk_signals"`
	CriticalFeatures    []string          `json:"critical_features"`
	MaxInactivityDays   int               `json:"max_inactivity_days"`
	PlaybookOverrides   map[string]string `json:"playbook_overrides,omitempty"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

const (
	minInactivityDays = 7
	maxInactivityDays = 180
)

// Validate checks the profile invariants enforced at write time: the
// health weights cover exactly the five sub-scores and sum to 100, the
// seasonality calendar has one entry per month, and the inactivity
// threshold is inside [7,180].
func (p *RetentionProfile) Validate() error {
	if p.VerticalID == "" {
		return fmt.Errorf("%w: vertical_id is required", ErrValidation)
	}

	sum := 0
	for _, name := range SubScoreNames() {
		weight, ok := p.HealthWeights[name]
		if !ok {
			return fmt.Errorf("%w: missing health weight for %q", ErrValidation, name)
		}
		if weight < 0 {
			return fmt.Errorf("%w: negative health weight for %q", ErrValidation, name)
		}
		sum += weight
	}
	if len(p.HealthWeights) != len(SubScoreNames()) {
		return fmt.Errorf("%w: unknown sub-score in health weights", ErrValidation)
	}
	if sum != 100 {
		return fmt.Errorf("%w: health weights sum to %d, must sum to 100", ErrValidation, sum)
	}

	if len(p.SeasonalityCalendar) != 12 {
		return fmt.Errorf("%w: seasonality calendar has %d entries, need 12", ErrValidation, len(p.SeasonalityCalendar))
	}
	seen := make(map[time.Month]bool, 12)
	for _, entry := range p.SeasonalityCalendar {
		if entry.Month < time.January || entry.Month > time.December {
			return fmt.Errorf("%w: invalid calendar month %d", ErrValidation, entry.Month)
		}
		if seen[entry.Month] {
			return fmt.Errorf("%w: duplicate calendar entry for %s", ErrValidation, entry.Month)
		}
		seen[entry.Month] = true
	}

	if p.MaxInactivityDays < minInactivityDays || p.MaxInactivityDays > maxInactivityDays {
		return fmt.Errorf("%w: max_inactivity_days %d outside [%d,%d]",
			ErrValidation, p.MaxInactivityDays, minInactivityDays, maxInactivityDays)
	}

	for _, signal := range p.ChurnRiskSignals {
		if signal.SignalID == "" {
			return fmt.Errorf("%w: churn signal with empty signal_id", ErrValidation)
		}
		if signal.Weight < 0 {
			return fmt.Errorf("%w: negative weight for churn signal %q", ErrValidation, signal.SignalID)
		}
	}

	return nil
}

// SeasonalEntry resolves the calendar entry for the given month, if any.
func (p *RetentionProfile) SeasonalEntry(month time.Month) (MonthEntry, bool) {
	for _, entry := range p.SeasonalityCalendar {
		if entry.Month == month {
			return entry, true
		}
	}
	return MonthEntry{}, false
}

// DefaultHealthWeights is the documented equal-weight fallback applied
// when a tenant has no vertical profile.
func DefaultHealthWeights() map[string]int {
	return map[string]int{
		SubScoreEngagement:   20,
		SubScoreAdoption:     20,
		SubScoreSatisfaction: 20,
		SubScoreSupport:      20,
		SubScoreGrowth:       20,
	}
}
