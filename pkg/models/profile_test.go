package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProfile() *RetentionProfile {
	calendar := make([]MonthEntry, 0, 12)
	for m := time.January; m <= time.December; m++ {
		calendar = append(calendar, MonthEntry{Month: m, RiskLevel: SeasonalRiskLow})
	}
	return &RetentionProfile{
		VerticalID:          "ecommerce",
		Label:               "E-commerce",
		HealthWeights:       DefaultHealthWeights(),
		SeasonalityCalendar: calendar,
		MaxInactivityDays:   30,
	}
}

func TestProfileValidate(t *testing.T) {
	require.NoError(t, validProfile().Validate())
}

func TestProfileValidateWeightSum(t *testing.T) {
	p := validProfile()
	p.HealthWeights[SubScoreGrowth] = 25

	err := p.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "sum to 105")
}

func TestProfileValidateMissingSubScore(t *testing.T) {
	p := validProfile()
	delete(p.HealthWeights, SubScoreSupport)

	assert.ErrorIs(t, p.Validate(), ErrValidation)
}

func TestProfileValidateUnknownSubScore(t *testing.T) {
	p := validProfile()
	p.HealthWeights[SubScoreEngagement] = 10
	p.HealthWeights["velocity"] = 10

	assert.ErrorIs(t, p.Validate(), ErrValidation)
}

func TestProfileValidateNegativeWeight(t *testing.T) {
	p := validProfile()
	p.HealthWeights[SubScoreEngagement] = -10
	p.HealthWeights[SubScoreAdoption] = 50

	assert.ErrorIs(t, p.Validate(), ErrValidation)
}

func TestProfileValidateCalendar(t *testing.T) {
	p := validProfile()
	p.SeasonalityCalendar = p.SeasonalityCalendar[:11]
	assert.ErrorIs(t, p.Validate(), ErrValidation)

	p = validProfile()
	p.SeasonalityCalendar[3].Month = time.January
	assert.ErrorIs(t, p.Validate(), ErrValidation)
}

func TestProfileValidateInactivityBounds(t *testing.T) {
	for _, days := range []int{6, 181, 0, -1} {
		p := validProfile()
		p.MaxInactivityDays = days
		assert.ErrorIs(t, p.Validate(), ErrValidation, "days=%d", days)
	}

	for _, days := range []int{7, 180, 90} {
		p := validProfile()
		p.MaxInactivityDays = days
		assert.NoError(t, p.Validate(), "days=%d", days)
	}
}

func TestProfileValidateChurnSignals(t *testing.T) {
	p := validProfile()
	p.ChurnRiskSignals = []ChurnSignal{{SignalID: "", Weight: 1}}
	assert.ErrorIs(t, p.Validate(), ErrValidation)

	p = validProfile()
	p.ChurnRiskSignals = []ChurnSignal{{SignalID: "inactivity", Weight: -2}}
	assert.ErrorIs(t, p.Validate(), ErrValidation)
}

func TestSeasonalEntry(t *testing.T) {
	p := validProfile()
	p.SeasonalityCalendar[0].AdjustmentPercent = -20

	entry, ok := p.SeasonalEntry(time.January)
	require.True(t, ok)
	assert.Equal(t, -20.0, entry.AdjustmentPercent)

	p.SeasonalityCalendar = nil
	_, ok = p.SeasonalEntry(time.January)
	assert.False(t, ok)
}

func TestDefaultHealthWeights(t *testing.T) {
	weights := DefaultHealthWeights()
	require.Len(t, weights, 5)

	sum := 0
	for _, name := range SubScoreNames() {
		assert.Equal(t, 20, weights[name])
		sum += weights[name]
	}
	assert.Equal(t, 100, sum)
}
