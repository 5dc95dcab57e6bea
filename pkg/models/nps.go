package models

import "time"

// NpsCategory buckets a 0-10 survey score
type NpsCategory string

const (
	NpsDetractor NpsCategory = "detractor"
	NpsPassive   NpsCategory = "passive"
	NpsPromoter  NpsCategory = "promoter"
)

// NpsResponse is one submitted satisfaction survey response
type NpsResponse struct {
	ResponseID  string    `json:"response_id"`
	TenantID    string    `json:"tenant_id"`
	Score       int       `json:"score"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Category derives the detractor/passive/promoter bucket:
// detractor 0-6, passive 7-8, promoter 9-10.
func (r *NpsResponse) Category() NpsCategory {
	return NpsCategoryForScore(r.Score)
}

// NpsCategoryForScore maps a 0-10 score to its NPS category.
func NpsCategoryForScore(score int) NpsCategory {
	switch {
	case score <= 6:
		return NpsDetractor
	case score <= 8:
		return NpsPassive
	default:
		return NpsPromoter
	}
}

// MonthlyNps is one month of a tenant's NPS trend series. Score is nil
// for months with zero responses; NPS is undefined there, never 0.
type MonthlyNps struct {
	Month     string `json:"month"`
	Score     *int   `json:"score"`
	Responses int    `json:"responses"`
}
