// Package playbook implements the Playbook Execution Engine: a state
// machine running multi-step retention interventions per tenant, with
// operator override. Status changes all pass through the shared
// transition table in pkg/models.
package playbook

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/retainly/internal/events"
	"github.com/retainly/pkg/models"
)

// ExecutionStore persists executions. CreateExecution must perform the
// at-most-one-active check and the create as one atomic operation and
// return models.ErrConflict when an active execution exists.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec *models.PlaybookExecution) error
	GetExecution(ctx context.Context, executionID string) (*models.PlaybookExecution, error)
	UpdateExecution(ctx context.Context, exec *models.PlaybookExecution) error
	ListExecutions(ctx context.Context, tenantID string) ([]*models.PlaybookExecution, error)
	DueExecutions(ctx context.Context, now time.Time) ([]*models.PlaybookExecution, error)
}

// DefinitionStore persists playbook definitions
type DefinitionStore interface {
	SaveDefinition(ctx context.Context, def *models.PlaybookDefinition) error
	GetDefinition(ctx context.Context, playbookID string) (*models.PlaybookDefinition, error)
	ListDefinitions(ctx context.Context) ([]*models.PlaybookDefinition, error)
	DeleteDefinition(ctx context.Context, playbookID string) error
}

// Engine runs playbook executions
type Engine struct {
	executions  ExecutionStore
	definitions DefinitionStore
	sink        events.Sink

	now func() time.Time
}

// NewEngine creates a new playbook execution engine
func NewEngine(executions ExecutionStore, definitions DefinitionStore, sink events.Sink) *Engine {
	return &Engine{
		executions:  executions,
		definitions: definitions,
		sink:        sink,
		now:         time.Now,
	}
}

// Execute starts a playbook against a tenant. It fails with a conflict
// when a non-terminal execution already exists for the (playbook,
// tenant) pair; the caller retries after the current one resolves.
func (e *Engine) Execute(ctx context.Context, playbookID, tenantID string) (*models.PlaybookExecution, error) {
	def, err := e.definitions.GetDefinition(ctx, playbookID)
	if err != nil {
		return nil, err
	}

	if def.Status != models.PlaybookActive {
		return nil, fmt.Errorf("%w: playbook %s is not active", models.ErrValidation, def.PlaybookID)
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("%w: playbook %s has no steps", models.ErrValidation, def.PlaybookID)
	}

	now := e.now().UTC()
	exec := &models.PlaybookExecution{
		ExecutionID: uuid.New().String(),
		PlaybookID:  def.PlaybookID,
		TenantID:    tenantID,
		CurrentStep: 0,
		TotalSteps:  len(def.Steps),
		Status:      models.ExecutionRunning,
		StartedAt:   now,
		NextStepAt:  now.Add(def.Steps[0].Delay),
	}

	if err := e.executions.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	event := models.NewRetentionEvent(
		models.EventTypePlaybookStarted,
		models.EventSeverityInfo,
		tenantID,
		"playbook-engine",
		fmt.Sprintf("started playbook %s (%d steps)", def.PlaybookID, exec.TotalSteps),
	)
	event.Metadata = map[string]interface{}{"execution_id": exec.ExecutionID, "playbook_id": def.PlaybookID}
	if err := e.sink.Publish(ctx, events.TopicPlaybookActions, event); err != nil {
		log.Printf("Failed to publish playbook start event for %s: %v", exec.ExecutionID, err)
	}

	return exec, nil
}

// Advance moves one execution forward by one step if it is running and
// due. An execution that was cancelled or paused since scheduling is
// detected here and left untouched; cancellation is cooperative.
func (e *Engine) Advance(ctx context.Context, executionID string) (*models.PlaybookExecution, error) {
	exec, err := e.executions.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if exec.Status != models.ExecutionRunning {
		return exec, nil
	}

	now := e.now().UTC()
	if exec.NextStepAt.After(now) {
		return exec, nil
	}

	def, err := e.definitions.GetDefinition(ctx, exec.PlaybookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load playbook %s: %w", exec.PlaybookID, err)
	}

	// The definition may have been shortened since the execution
	// started; steps past the new end count as already done.
	if exec.CurrentStep < len(def.Steps) {
		e.publishStep(ctx, exec, def.Steps[exec.CurrentStep])
		exec.CurrentStep++
	}
	if len(def.Steps) < exec.TotalSteps {
		exec.TotalSteps = len(def.Steps)
	}

	if exec.CurrentStep >= exec.TotalSteps {
		if !models.CanTransition(exec.Status, models.ExecutionCompleted) {
			return nil, fmt.Errorf("%w: cannot complete execution in status %s", models.ErrConflict, exec.Status)
		}
		exec.Status = models.ExecutionCompleted
		completedAt := now
		exec.CompletedAt = &completedAt
	} else {
		exec.NextStepAt = now.Add(def.Steps[exec.CurrentStep].Delay)
	}

	if err := e.executions.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to update execution %s: %w", executionID, err)
	}

	if exec.Status == models.ExecutionCompleted {
		event := models.NewRetentionEvent(
			models.EventTypePlaybookCompleted,
			models.EventSeverityInfo,
			exec.TenantID,
			"playbook-engine",
			fmt.Sprintf("playbook %s completed", exec.PlaybookID),
		)
		event.Metadata = map[string]interface{}{"execution_id": exec.ExecutionID}
		if err := e.sink.Publish(ctx, events.TopicPlaybookActions, event); err != nil {
			log.Printf("Failed to publish playbook completion event for %s: %v", exec.ExecutionID, err)
		}
	}

	return exec, nil
}

// RunDueSteps advances every running execution whose next step is due
// and returns the count advanced. Per-execution failures are logged
// and skipped.
func (e *Engine) RunDueSteps(ctx context.Context) (int, error) {
	due, err := e.executions.DueExecutions(ctx, e.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to list due executions: %w", err)
	}

	advanced := 0
	for _, exec := range due {
		if _, err := e.Advance(ctx, exec.ExecutionID); err != nil {
			log.Printf("Failed to advance execution %s: %v", exec.ExecutionID, err)
			continue
		}
		advanced++
	}
	return advanced, nil
}

// Override applies an operator pause/resume/cancel. The transition is
// validated against the shared table; anything else is rejected with a
// conflict and leaves the execution unchanged. The reason is recorded
// for audit.
func (e *Engine) Override(ctx context.Context, executionID string, action models.OverrideAction, reason string) (*models.PlaybookExecution, error) {
	target, ok := action.TargetStatus()
	if !ok {
		return nil, fmt.Errorf("%w: unknown override action %q", models.ErrValidation, action)
	}

	exec, err := e.executions.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(exec.Status, target) {
		return nil, fmt.Errorf("%w: cannot %s execution in status %s", models.ErrConflict, action, exec.Status)
	}

	now := e.now().UTC()
	exec.Overrides = append(exec.Overrides, models.OverrideRecord{
		Action:     action,
		FromStatus: exec.Status,
		ToStatus:   target,
		Reason:     reason,
		AppliedAt:  now,
	})
	exec.Status = target

	if err := e.executions.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to update execution %s: %w", executionID, err)
	}

	event := models.NewRetentionEvent(
		models.EventTypePlaybookOverride,
		models.EventSeverityInfo,
		exec.TenantID,
		"playbook-engine",
		fmt.Sprintf("override %s on execution %s: %s", action, executionID, reason),
	)
	event.Metadata = map[string]interface{}{
		"execution_id": executionID,
		"action":       string(action),
		"reason":       reason,
	}
	if err := e.sink.Publish(ctx, events.TopicPlaybookActions, event); err != nil {
		log.Printf("Failed to publish override event for %s: %v", executionID, err)
	}

	return exec, nil
}

// GetExecution returns one execution by ID.
func (e *Engine) GetExecution(ctx context.Context, executionID string) (*models.PlaybookExecution, error) {
	return e.executions.GetExecution(ctx, executionID)
}

// ListExecutions returns executions, optionally filtered by tenant.
func (e *Engine) ListExecutions(ctx context.Context, tenantID string) ([]*models.PlaybookExecution, error) {
	return e.executions.ListExecutions(ctx, tenantID)
}

// SaveDefinition validates and stores a playbook definition.
func (e *Engine) SaveDefinition(ctx context.Context, def *models.PlaybookDefinition) error {
	if def.PlaybookID == "" {
		return fmt.Errorf("%w: playbook id is required", models.ErrValidation)
	}
	if def.Status != models.PlaybookActive && def.Status != models.PlaybookInactive {
		return fmt.Errorf("%w: invalid playbook status %q", models.ErrValidation, def.Status)
	}
	for i, step := range def.Steps {
		if step.StepIndex != i {
			return fmt.Errorf("%w: playbook %s step %d has index %d", models.ErrValidation, def.PlaybookID, i, step.StepIndex)
		}
		if step.Action == "" {
			return fmt.Errorf("%w: playbook %s step %d has no action", models.ErrValidation, def.PlaybookID, i)
		}
		if step.Delay < 0 {
			return fmt.Errorf("%w: playbook %s step %d has negative delay", models.ErrValidation, def.PlaybookID, i)
		}
	}
	return e.definitions.SaveDefinition(ctx, def)
}

// GetDefinition returns one playbook definition by ID.
func (e *Engine) GetDefinition(ctx context.Context, playbookID string) (*models.PlaybookDefinition, error) {
	return e.definitions.GetDefinition(ctx, playbookID)
}

// ListDefinitions returns all playbook definitions.
func (e *Engine) ListDefinitions(ctx context.Context) ([]*models.PlaybookDefinition, error) {
	return e.definitions.ListDefinitions(ctx)
}

// DeleteDefinition removes a playbook definition. Existing executions
// keep their recorded playbook ID.
func (e *Engine) DeleteDefinition(ctx context.Context, playbookID string) error {
	return e.definitions.DeleteDefinition(ctx, playbookID)
}

func (e *Engine) publishStep(ctx context.Context, exec *models.PlaybookExecution, step models.PlaybookStep) {
	event := models.NewRetentionEvent(
		models.EventTypePlaybookStep,
		models.EventSeverityInfo,
		exec.TenantID,
		"playbook-engine",
		fmt.Sprintf("playbook %s step %d: %s", exec.PlaybookID, step.StepIndex, step.Action),
	)
	event.Metadata = map[string]interface{}{
		"execution_id": exec.ExecutionID,
		"step_index":   step.StepIndex,
		"action":       step.Action,
	}
	if err := e.sink.Publish(ctx, events.TopicPlaybookActions, event); err != nil {
		log.Printf("Failed to publish step event for %s: %v", exec.ExecutionID, err)
	}
}
