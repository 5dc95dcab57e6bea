package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := map[ExecutionStatus][]ExecutionStatus{
		ExecutionRunning: {ExecutionPaused, ExecutionCancelled, ExecutionCompleted},
		ExecutionPaused:  {ExecutionRunning, ExecutionCancelled},
	}

	all := []ExecutionStatus{ExecutionRunning, ExecutionPaused, ExecutionCompleted, ExecutionCancelled}
	for _, from := range all {
		for _, to := range all {
			expected := false
			for _, a := range allowed[from] {
				if a == to {
					expected = true
				}
			}
			assert.Equal(t, expected, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	all := []ExecutionStatus{ExecutionRunning, ExecutionPaused, ExecutionCompleted, ExecutionCancelled}
	for _, to := range all {
		assert.False(t, CanTransition(ExecutionCompleted, to), "completed -> %s", to)
		assert.False(t, CanTransition(ExecutionCancelled, to), "cancelled -> %s", to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, ExecutionRunning.IsTerminal())
	assert.False(t, ExecutionPaused.IsTerminal())
	assert.True(t, ExecutionCompleted.IsTerminal())
	assert.True(t, ExecutionCancelled.IsTerminal())
}

func TestOverrideActionTargetStatus(t *testing.T) {
	tests := []struct {
		action   OverrideAction
		expected ExecutionStatus
		ok       bool
	}{
		{OverridePause, ExecutionPaused, true},
		{OverrideResume, ExecutionRunning, true},
		{OverrideCancel, ExecutionCancelled, true},
		{OverrideAction("restart"), "", false},
	}

	for _, tt := range tests {
		status, ok := tt.action.TargetStatus()
		assert.Equal(t, tt.ok, ok, "action=%s", tt.action)
		if tt.ok {
			assert.Equal(t, tt.expected, status, "action=%s", tt.action)
		}
	}
}

func TestCanTransitionExpansion(t *testing.T) {
	assert.True(t, CanTransitionExpansion(ExpansionNew, ExpansionContacted))
	assert.True(t, CanTransitionExpansion(ExpansionContacted, ExpansionWon))
	assert.True(t, CanTransitionExpansion(ExpansionContacted, ExpansionLost))
	assert.True(t, CanTransitionExpansion(ExpansionContacted, ExpansionDeferred))

	assert.False(t, CanTransitionExpansion(ExpansionNew, ExpansionWon))
	assert.False(t, CanTransitionExpansion(ExpansionWon, ExpansionContacted))
	assert.False(t, CanTransitionExpansion(ExpansionLost, ExpansionNew))
	assert.False(t, CanTransitionExpansion(ExpansionDeferred, ExpansionContacted))
}

func TestExpansionSignalIsOpen(t *testing.T) {
	sig := &ExpansionSignal{Status: ExpansionNew}
	assert.True(t, sig.IsOpen())

	sig.Status = ExpansionContacted
	assert.True(t, sig.IsOpen())

	for _, closed := range []ExpansionStatus{ExpansionWon, ExpansionLost, ExpansionDeferred} {
		sig.Status = closed
		assert.False(t, sig.IsOpen(), "status=%s", closed)
	}
}
