package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUrgencyForProbability(t *testing.T) {
	tests := []struct {
		probability float64
		expected    InterventionUrgency
	}{
		{0.0, UrgencyNone},
		{0.14, UrgencyNone},
		{0.15, UrgencyLow},
		{0.29, UrgencyLow},
		{0.3, UrgencyMedium},
		{0.49, UrgencyMedium},
		{0.5, UrgencyHigh},
		{0.74, UrgencyHigh},
		{0.75, UrgencyCritical},
		{1.0, UrgencyCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, UrgencyForProbability(tt.probability), "p=%v", tt.probability)
	}
}

func TestAdjustProbability(t *testing.T) {
	// 0.4 with a -20% seasonal adjustment
	assert.InDelta(t, 0.32, AdjustProbability(0.4, -20), 1e-9)

	// 0.5 with a +10% adjustment
	assert.InDelta(t, 0.55, AdjustProbability(0.5, 10), 1e-9)

	// No adjustment passes the base through
	assert.InDelta(t, 0.4, AdjustProbability(0.4, 0), 1e-9)
}

func TestAdjustProbabilityClamp(t *testing.T) {
	// 0.9 with +50% would be 1.35; clamped to 1
	assert.Equal(t, 1.0, AdjustProbability(0.9, 50))

	// A large negative adjustment cannot push below 0
	assert.Equal(t, 0.0, AdjustProbability(0.1, -200))
}
