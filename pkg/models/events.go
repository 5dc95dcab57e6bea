package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of retention event
type EventType string

const (
	EventTypeHealthScored      EventType = "health.scored"
	EventTypeHealthCritical    EventType = "health.critical"
	EventTypeChurnPredicted    EventType = "churn.predicted"
	EventTypeExpansionDetected EventType = "expansion.detected"
	EventTypePlaybookStarted   EventType = "playbook.started"
	EventTypePlaybookStep      EventType = "playbook.step"
	EventTypePlaybookCompleted EventType = "playbook.completed"
	EventTypePlaybookOverride  EventType = "playbook.override"
	EventTypeNpsCollected      EventType = "nps.collected"
)

// EventSeverity represents the severity of an event
type EventSeverity string

const (
	EventSeverityInfo     EventSeverity = "info"
	EventSeverityWarning  EventSeverity = "warning"
	EventSeverityCritical EventSeverity = "critical"
)

// RetentionEvent is the structured event emitted to the notification
// sink. Delivery mechanics (email, in-app) are the sink's concern; the
// engine only emits.
type RetentionEvent struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	Severity    EventSeverity          `json:"severity"`
	Timestamp   time.Time              `json:"timestamp"`
	TenantID    string                 `json:"tenant_id"`
	Source      string                 `json:"source"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewRetentionEvent creates an event with a fresh ID and timestamp.
func NewRetentionEvent(eventType EventType, severity EventSeverity, tenantID, source, description string) RetentionEvent {
	return RetentionEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Severity:    severity,
		Timestamp:   time.Now().UTC(),
		TenantID:    tenantID,
		Source:      source,
		Description: description,
	}
}
