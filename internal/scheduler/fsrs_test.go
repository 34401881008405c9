package scheduler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rememo/rememo/internal/domain"
)

func decodeState(t *testing.T, data json.RawMessage) fsrsState {
	t.Helper()
	var st fsrsState
	require.NoError(t, json.Unmarshal(data, &st))
	return st
}

func TestFSRSFirstReviewInitialization(t *testing.T) {
	f := NewFSRS(DefaultFSRSParams())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for rating := Again; rating <= Easy; rating++ {
		res, err := f.Compute(Request{Rating: rating, Now: now})
		require.NoError(t, err)

		st := decodeState(t, res.SchedulerData)
		assert.Equal(t, initStability[rating-1], st.Stability, "rating %d", rating)
		assert.Equal(t, initDifficulty[rating-1], st.Difficulty, "rating %d", rating)

		require.NotNil(t, res.Retention)
		assert.InDelta(t, 0.9, *res.Retention, 1e-9)
	}
}

func TestFSRSHigherFirstRatingSchedulesFurtherOut(t *testing.T) {
	f := NewFSRS(DefaultFSRSParams())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var prev time.Time
	for rating := Again; rating <= Easy; rating++ {
		res, err := f.Compute(Request{Rating: rating, Now: now})
		require.NoError(t, err)
		if rating > Again {
			assert.True(t, res.NextReview.After(prev), "rating %d", rating)
		}
		prev = res.NextReview
	}
}

// With a 0.9 target retention the scheduled interval inverts the forgetting
// curve to exactly the stability, in days.
func TestFSRSIntervalMatchesStability(t *testing.T) {
	f := NewFSRS(DefaultFSRSParams())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	res, err := f.Compute(Request{Rating: Good, Now: now})
	require.NoError(t, err)

	st := decodeState(t, res.SchedulerData)
	wantDays := 9 * st.Stability * (1/0.9 - 1)
	assert.InDelta(t, st.Stability, wantDays, 1e-9)
	assert.InDelta(t, wantDays, res.NextReview.Sub(now).Hours()/24, 1e-6)
}

func TestFSRSStabilityGrowsMonotonicallyUnderGoodReviews(t *testing.T) {
	f := NewFSRS(DefaultFSRSParams())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	res, err := f.Compute(Request{Rating: Good, Now: now})
	require.NoError(t, err)
	stability := decodeState(t, res.SchedulerData).Stability
	interval := res.NextReview.Sub(now)

	last := now
	for i := 0; i < 6; i++ {
		reviewAt := res.NextReview
		res, err = f.Compute(Request{
			Rating:        Good,
			SchedulerData: res.SchedulerData,
			LastReview:    &last,
			Now:           reviewAt,
		})
		require.NoError(t, err)

		st := decodeState(t, res.SchedulerData)
		assert.Greater(t, st.Stability, stability, "iteration %d", i)
		assert.Greater(t, res.NextReview.Sub(reviewAt), interval, "iteration %d", i)

		stability = st.Stability
		interval = res.NextReview.Sub(reviewAt)
		last = reviewAt
	}
}

func TestFSRSLapseResetsStabilityDownward(t *testing.T) {
	f := NewFSRS(DefaultFSRSParams())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	last := now.Add(-10 * 24 * time.Hour)

	data, err := json.Marshal(fsrsState{Stability: 10, Difficulty: 5})
	require.NoError(t, err)

	res, err := f.Compute(Request{Rating: Again, SchedulerData: data, LastReview: &last, Now: now})
	require.NoError(t, err)

	st := decodeState(t, res.SchedulerData)
	assert.Less(t, st.Stability, 10.0)
	assert.GreaterOrEqual(t, st.Stability, minStability)
	assert.Greater(t, st.Difficulty, 5.0, "failing raises difficulty")
}

func TestFSRSDifficultyStaysClamped(t *testing.T) {
	f := NewFSRS(DefaultFSRSParams())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Repeated failures push difficulty up to the cap, never beyond.
	res, err := f.Compute(Request{Rating: Again, Now: now})
	require.NoError(t, err)
	last := now
	for i := 0; i < 10; i++ {
		reviewAt := last.Add(24 * time.Hour)
		res, err = f.Compute(Request{Rating: Again, SchedulerData: res.SchedulerData, LastReview: &last, Now: reviewAt})
		require.NoError(t, err)
		last = reviewAt
	}
	assert.Equal(t, maxDifficulty, decodeState(t, res.SchedulerData).Difficulty)

	// Repeated easy reviews pull it down to the floor, never below.
	res, err = f.Compute(Request{Rating: Easy, Now: now})
	require.NoError(t, err)
	last = now
	for i := 0; i < 10; i++ {
		reviewAt := last.Add(24 * time.Hour)
		res, err = f.Compute(Request{Rating: Easy, SchedulerData: res.SchedulerData, LastReview: &last, Now: reviewAt})
		require.NoError(t, err)
		last = reviewAt
	}
	assert.Equal(t, minDifficulty, decodeState(t, res.SchedulerData).Difficulty)
}

func TestFSRSUndecodableStateFallsBackToFirstReview(t *testing.T) {
	f := NewFSRS(DefaultFSRSParams())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	last := now.Add(-24 * time.Hour)

	fresh, err := f.Compute(Request{Rating: Good, Now: now})
	require.NoError(t, err)

	garbled, err := f.Compute(Request{
		Rating:        Good,
		SchedulerData: []byte(`{"totally": "unrelated"}`),
		LastReview:    &last,
		Now:           now,
	})
	require.NoError(t, err)

	assert.Equal(t, fresh, garbled)
}

func TestFSRSRejectsOutOfRangeRatings(t *testing.T) {
	f := NewFSRS(DefaultFSRSParams())
	now := time.Now()

	for _, rating := range []domain.Rating{0, 5, -3} {
		_, err := f.Compute(Request{Rating: rating, Now: now})
		assert.ErrorIs(t, err, domain.ErrInvalidRating, "rating %d", rating)
	}
}

func TestFSRSIsPure(t *testing.T) {
	f := NewFSRS(DefaultFSRSParams())
	last := time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)
	req := Request{
		Rating:        Hard,
		SchedulerData: []byte(`{"stability": 4.2, "difficulty": 6.1}`),
		LastReview:    &last,
		Now:           time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	first, err := f.Compute(req)
	require.NoError(t, err)
	second, err := f.Compute(req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFSRSAlwaysSchedulesAhead(t *testing.T) {
	f := NewFSRS(DefaultFSRSParams())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	last := now.Add(-36 * time.Hour)
	data, err := json.Marshal(fsrsState{Stability: 0.5, Difficulty: 9.5})
	require.NoError(t, err)

	for rating := Again; rating <= Easy; rating++ {
		res, err := f.Compute(Request{Rating: rating, SchedulerData: data, LastReview: &last, Now: now})
		require.NoError(t, err)
		assert.True(t, res.NextReview.After(now), "rating %d", rating)
	}
}
