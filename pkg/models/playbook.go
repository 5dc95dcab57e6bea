package models

import "time"

// PlaybookStatus marks a definition as eligible for execution or not
type PlaybookStatus string

const (
	PlaybookActive   PlaybookStatus = "active"
	PlaybookInactive PlaybookStatus = "inactive"
)

// PlaybookStep is one ordered intervention step of a playbook
type PlaybookStep struct {
	StepIndex int           `json:"step_index"`
	Action    string        `json:"action"`
	Delay     time.Duration `json:"delay"`
}

// PlaybookDefinition is an ordered sequence of retention interventions
type PlaybookDefinition struct {
	PlaybookID string         `json:"playbook_id"`
	Name       string         `json:"name"`
	Status     PlaybookStatus `json:"status"`
	Steps      []PlaybookStep `json:"steps"`
}

// ExecutionStatus is the playbook execution state machine state
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionCancelled
}

// validExecutionTransitions is the single authoritative transition
// table. Every code path that mutates an execution's status must check
// it through CanTransition; the table is never duplicated elsewhere.
var validExecutionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionRunning: {ExecutionPaused, ExecutionCancelled, ExecutionCompleted},
	ExecutionPaused:  {ExecutionRunning, ExecutionCancelled},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to ExecutionStatus) bool {
	for _, allowed := range validExecutionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// OverrideAction is an operator intervention on a running execution
type OverrideAction string

const (
	OverridePause  OverrideAction = "pause"
	OverrideResume OverrideAction = "resume"
	OverrideCancel OverrideAction = "cancel"
)

// TargetStatus returns the status the action drives the execution to.
func (a OverrideAction) TargetStatus() (ExecutionStatus, bool) {
	switch a {
	case OverridePause:
		return ExecutionPaused, true
	case OverrideResume:
		return ExecutionRunning, true
	case OverrideCancel:
		return ExecutionCancelled, true
	default:
		return "", false
	}
}

// OverrideRecord captures an operator override for audit
type OverrideRecord struct {
	Action     OverrideAction  `json:"action"`
	FromStatus ExecutionStatus `json:"from_status"`
	ToStatus   ExecutionStatus `json:"to_status"`
	Reason     string          `json:"reason"`
	AppliedAt  time.Time       `json:"applied_at"`
}

// PlaybookExecution is one playbook instance running against a tenant.
// At most one non-terminal execution may exist per (playbook, tenant).
type PlaybookExecution struct {
	ExecutionID string          `json:"execution_id"`
	PlaybookID  string          `json:"playbook_id"`
	TenantID    string          `json:"tenant_id"`
	CurrentStep int             `json:"current_step"`
	TotalSteps  int             `json:"total_steps"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`

	// NextStepAt is the wall-clock time at which the next step becomes
	// due; the advancement tick skips executions that are not due yet
	NextStepAt time.Time        `json:"next_step_at"`
	Overrides  []OverrideRecord `json:"overrides,omitempty"`
}
