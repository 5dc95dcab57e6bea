package models

import "time"

// InterventionUrgency tiers an adjusted churn probability. The
// thresholds are fixed constants rather than per-vertical configuration
// so that urgency stays comparable across verticals.
type InterventionUrgency string

const (
	UrgencyNone     InterventionUrgency = "none"
	UrgencyLow      InterventionUrgency = "low"
	UrgencyMedium   InterventionUrgency = "medium"
	UrgencyHigh     InterventionUrgency = "high"
	UrgencyCritical InterventionUrgency = "critical"
)

// PredictionMonthLayout is the YYYY-MM key format for churn predictions.
const PredictionMonthLayout = "2006-01"

// ChurnPrediction is the one-per-tenant-per-month churn estimate.
// Predicting twice in the same month overwrites the month's record;
// months that have elapsed are immutable.
type ChurnPrediction struct {
	TenantID        string `json:"tenant_id"`
	VerticalID      string `json:"vertical_id"`
	PredictionMonth string `json:"prediction_month"`

	BaseProbability     float64 `json:"base_probability"`
	SeasonalAdjustment  float64 `json:"seasonal_adjustment"`
	AdjustedProbability float64 `json:"adjusted_probability"`

	InterventionUrgency InterventionUrgency `json:"intervention_urgency"`
	PredictedAt         time.Time           `json:"predicted_at"`
}

// UrgencyForProbability maps an adjusted probability to its tier:
// critical >=0.75, high >=0.5, medium >=0.3, low >=0.15, else none.
func UrgencyForProbability(p float64) InterventionUrgency {
	switch {
	case p >= 0.75:
		return UrgencyCritical
	case p >= 0.5:
		return UrgencyHigh
	case p >= 0.3:
		return UrgencyMedium
	case p >= 0.15:
		return UrgencyLow
	default:
		return UrgencyNone
	}
}

// AdjustProbability applies the seasonal adjustment to a base
// probability and clamps the result into [0,1]. The clamp is mandatory;
// callers must never store an unclamped value.
func AdjustProbability(base, adjustmentPercent float64) float64 {
	adjusted := base * (1 + adjustmentPercent/100)
	if adjusted < 0 {
		return 0
	}
	if adjusted > 1 {
		return 1
	}
	return adjusted
}
