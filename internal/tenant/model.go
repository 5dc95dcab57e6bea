package tenant

import "time"

// Tenant represents a customer account being scored and tracked for
// retention. The directory is a read-only collaborator; the engine only
// needs the vertical assignment, plan and status.
type Tenant struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Slug      string       `json:"slug"`
	Plan      string       `json:"plan"`
	Vertical  string       `json:"vertical"`
	Status    TenantStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

type TenantStatus string

const (
	TenantStatusActive     TenantStatus = "active"
	TenantStatusSuspended  TenantStatus = "suspended"
	TenantStatusCancelled  TenantStatus = "cancelled"
	TenantStatusOnboarding TenantStatus = "onboarding"
)
