package models

import "time"

// ExpansionSignalType identifies what kind of upsell threshold fired
type ExpansionSignalType string

const (
	SignalUsageLimit    ExpansionSignalType = "usage_limit"
	SignalSeatExhausted ExpansionSignalType = "seat_exhausted"
)

// ExpansionStatus is the operator-driven signal lifecycle:
// new -> contacted -> {won, lost, deferred}
type ExpansionStatus string

const (
	ExpansionNew       ExpansionStatus = "new"
	ExpansionContacted ExpansionStatus = "contacted"
	ExpansionWon       ExpansionStatus = "won"
	ExpansionLost      ExpansionStatus = "lost"
	ExpansionDeferred  ExpansionStatus = "deferred"
)

var validExpansionTransitions = map[ExpansionStatus][]ExpansionStatus{
	ExpansionNew:       {ExpansionContacted},
	ExpansionContacted: {ExpansionWon, ExpansionLost, ExpansionDeferred},
}

// CanTransitionExpansion reports whether from -> to is a legal
// expansion signal status change.
func CanTransitionExpansion(from, to ExpansionStatus) bool {
	for _, allowed := range validExpansionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ExpansionSignal is a detected upsell opportunity for a tenant
type ExpansionSignal struct {
	SignalID        string              `json:"signal_id"`
	TenantID        string              `json:"tenant_id"`
	SignalType      ExpansionSignalType `json:"signal_type"`
	CurrentPlan     string              `json:"current_plan"`
	RecommendedPlan string              `json:"recommended_plan"`
	PotentialARR    int64               `json:"potential_arr"`
	Status          ExpansionStatus     `json:"status"`
	DetectedAt      time.Time           `json:"detected_at"`
}

// IsOpen reports whether the signal still blocks re-detection of the
// same signal type for its tenant.
func (s *ExpansionSignal) IsOpen() bool {
	return s.Status == ExpansionNew || s.Status == ExpansionContacted
}
