package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryForScore(t *testing.T) {
	tests := []struct {
		score    int
		expected HealthCategory
	}{
		{0, HealthCritical},
		{39, HealthCritical},
		{40, HealthAtRisk},
		{59, HealthAtRisk},
		{60, HealthNeutral},
		{79, HealthNeutral},
		{80, HealthHealthy},
		{100, HealthHealthy},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, CategoryForScore(tt.score), "score=%d", tt.score)
	}
}

func TestSubScore(t *testing.T) {
	score := &HealthScore{
		Engagement:   90,
		Adoption:     85,
		Satisfaction: 88,
		Support:      92,
		Growth:       80,
	}

	assert.Equal(t, 90, score.SubScore(SubScoreEngagement))
	assert.Equal(t, 85, score.SubScore(SubScoreAdoption))
	assert.Equal(t, 88, score.SubScore(SubScoreSatisfaction))
	assert.Equal(t, 92, score.SubScore(SubScoreSupport))
	assert.Equal(t, 80, score.SubScore(SubScoreGrowth))
	assert.Equal(t, 0, score.SubScore("velocity"))
}
