package models

import "time"

// BillingStatus mirrors the billing collaborator's subscription state
type BillingStatus string

const (
	BillingCurrent  BillingStatus = "current"
	BillingPastDue  BillingStatus = "past_due"
	BillingUnpaid   BillingStatus = "unpaid"
	BillingCanceled BillingStatus = "canceled"
)

// TenantFacts is the per-tenant snapshot returned by the usage/billing
// facts feed. The engine treats the feed as an opaque read-only source
// keyed by tenant identifier.
type TenantFacts struct {
	TenantID string `json:"tenant_id"`

	// Activity
	ActiveDays     int       `json:"active_days"`
	PeriodDays     int       `json:"period_days"`
	LastActivityAt time.Time `json:"last_activity_at"`

	// Feature usage flags keyed by feature identifier
	FeaturesUsed map[string]bool `json:"features_used"`

	// Plan limits and consumption
	PlanUsageUnits          int64 `json:"plan_usage_units"`
	PlanLimitUnits          int64 `json:"plan_limit_units"`
	HighUsagePeriods        int   `json:"high_usage_periods"`
	SeatsUsed               int   `json:"seats_used"`
	SeatLimit               int   `json:"seat_limit"`
	ConsecutiveDeclineWeeks int   `json:"consecutive_decline_weeks"`

	// Support
	OpenTickets      int `json:"open_tickets"`
	TicketsLast30d   int `json:"tickets_last_30d"`
	EscalatedTickets int `json:"escalated_tickets"`

	// Billing
	BillingStatus    BillingStatus `json:"billing_status"`
	MRRChangePercent float64       `json:"mrr_change_percent"`
}

// PlanUsageRatio returns consumption as a fraction of the plan limit,
// zero when the plan is unmetered.
func (f *TenantFacts) PlanUsageRatio() float64 {
	if f.PlanLimitUnits <= 0 {
		return 0
	}
	return float64(f.PlanUsageUnits) / float64(f.PlanLimitUnits)
}
