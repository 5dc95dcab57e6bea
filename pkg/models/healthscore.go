package models

import "time"

// HealthCategory buckets an overall score into fixed bands
type HealthCategory string

const (
	HealthCritical HealthCategory = "critical"
	HealthAtRisk   HealthCategory = "at_risk"
	HealthNeutral  HealthCategory = "neutral"
	HealthHealthy  HealthCategory = "healthy"
)

// HealthTrend compares a score against the tenant's preceding record
type HealthTrend string

const (
	TrendImproving HealthTrend = "improving"
	TrendStable    HealthTrend = "stable"
	TrendDeclining HealthTrend = "declining"
)

// HealthScore is one calculation-run result for a tenant. Records are
// append-only: each sweep creates a new one and history is never mutated.
type HealthScore struct {
	TenantID     string    `json:"tenant_id"`
	CalculatedAt time.Time `json:"calculated_at"`

	Engagement   int `json:"engagement"`
	Adoption     int `json:"adoption"`
	Satisfaction int `json:"satisfaction"`
	Support      int `json:"support"`
	Growth       int `json:"growth"`

	OverallScore int            `json:"overall_score"`
	Category     HealthCategory `json:"category"`
	Trend        HealthTrend    `json:"trend"`

	// ChurnProbability carries the most recent adjusted churn
	// probability for convenience on dashboard reads
	ChurnProbability float64 `json:"churn_probability"`
}

// SubScore returns the named sub-score value.
func (h *HealthScore) SubScore(name string) int {
	switch name {
	case SubScoreEngagement:
		return h.Engagement
	case SubScoreAdoption:
		return h.Adoption
	case SubScoreSatisfaction:
		return h.Satisfaction
	case SubScoreSupport:
		return h.Support
	case SubScoreGrowth:
		return h.Growth
	default:
		return 0
	}
}

// CategoryForScore maps an overall score to its fixed band:
// critical <40, at_risk 40-59, neutral 60-79, healthy >=80.
func CategoryForScore(score int) HealthCategory {
	switch {
	case score < 40:
		return HealthCritical
	case score < 60:
		return HealthAtRisk
	case score < 80:
		return HealthNeutral
	default:
		return HealthHealthy
	}
}
