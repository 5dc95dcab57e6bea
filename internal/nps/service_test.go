package nps

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retainly/internal/events"
	"github.com/retainly/internal/memstore"
	"github.com/retainly/pkg/models"
)

func newServiceFixture(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return NewService(DefaultServiceConfig(), store, events.NewLogSink()), store
}

func TestSurveyCooldown(t *testing.T) {
	service, _ := newServiceFixture(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }

	eligible, err := service.CanSend(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, eligible, "never-surveyed tenant is always eligible")

	require.NoError(t, service.MarkSent(ctx, "t-1"))

	eligible, err = service.CanSend(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, eligible)

	assert.ErrorIs(t, service.MarkSent(ctx, "t-1"), models.ErrConflict)

	// One day short of the 90-day cooldown.
	service.now = func() time.Time { return base.AddDate(0, 0, 89) }
	eligible, err = service.CanSend(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, eligible)

	service.now = func() time.Time { return base.AddDate(0, 0, 90) }
	eligible, err = service.CanSend(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, eligible)
	assert.NoError(t, service.MarkSent(ctx, "t-1"))
}

func TestCollectValidatesScore(t *testing.T) {
	service, store := newServiceFixture(t)
	ctx := context.Background()

	for _, score := range []int{-1, 11, 100} {
		_, err := service.Collect(ctx, "t-1", score, "")
		assert.ErrorIs(t, err, models.ErrValidation, "score=%d", score)
	}

	response, err := service.Collect(ctx, "t-1", 10, "love the product")
	require.NoError(t, err)
	assert.NotEmpty(t, response.ResponseID)
	assert.Equal(t, models.NpsPromoter, response.Category())

	saved, err := store.ListResponses(ctx, "t-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, saved, 1, "rejected scores are never persisted")
}

func TestGetScore(t *testing.T) {
	service, _ := newServiceFixture(t)
	ctx := context.Background()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	score, responses, err := service.GetScore(ctx, "t-1")
	require.NoError(t, err)
	assert.Nil(t, score, "zero responses yield no score, not zero")
	assert.Equal(t, 0, responses)

	// 2 promoters, 1 passive, 1 detractor: 50% - 25% = 25.
	for _, s := range []int{9, 10, 8, 2} {
		_, err := service.Collect(ctx, "t-1", s, "")
		require.NoError(t, err)
	}

	service.now = func() time.Time { return now.Add(time.Hour) }
	score, responses, err = service.GetScore(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Equal(t, 25, *score)
	assert.Equal(t, 4, responses)
}

func TestGetScoreIgnoresResponsesOutsideWindow(t *testing.T) {
	service, _ := newServiceFixture(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// An old detractor outside the 90-day window.
	service.now = func() time.Time { return base }
	_, err := service.Collect(ctx, "t-1", 0, "")
	require.NoError(t, err)

	service.now = func() time.Time { return base.AddDate(0, 0, 100) }
	_, err = service.Collect(ctx, "t-1", 9, "")
	require.NoError(t, err)

	service.now = func() time.Time { return base.AddDate(0, 0, 100).Add(time.Hour) }
	score, responses, err := service.GetScore(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Equal(t, 100, *score)
	assert.Equal(t, 1, responses)
}

func TestGetTrend(t *testing.T) {
	service, _ := newServiceFixture(t)
	ctx := context.Background()

	// Responses in March and May, none in April.
	service.now = func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }
	_, err := service.Collect(ctx, "t-1", 9, "")
	require.NoError(t, err)
	_, err = service.Collect(ctx, "t-1", 3, "")
	require.NoError(t, err)

	service.now = func() time.Time { return time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC) }
	_, err = service.Collect(ctx, "t-1", 10, "")
	require.NoError(t, err)

	trend, err := service.GetTrend(ctx, "t-1", 3)
	require.NoError(t, err)
	require.Len(t, trend, 3)

	assert.Equal(t, "2026-03", trend[0].Month)
	require.NotNil(t, trend[0].Score)
	assert.Equal(t, 0, *trend[0].Score, "one promoter, one detractor")
	assert.Equal(t, 2, trend[0].Responses)

	assert.Equal(t, "2026-04", trend[1].Month)
	assert.Nil(t, trend[1].Score)
	assert.Equal(t, 0, trend[1].Responses)

	assert.Equal(t, "2026-05", trend[2].Month)
	require.NotNil(t, trend[2].Score)
	assert.Equal(t, 100, *trend[2].Score)

	_, err = service.GetTrend(ctx, "t-1", 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}
