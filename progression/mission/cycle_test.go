package mission

import (
	"testing"
	"time"

	"github.com/kasuganosora/progression/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleStart_Daily(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:30 UTC on the 10th is still the 9th in New York
	now := time.Date(2024, 4, 10, 2, 30, 0, 0, time.UTC)
	start := CycleStart(model.MissionDaily, now, loc)
	assert.Equal(t, time.Date(2024, 4, 9, 0, 0, 0, 0, loc).UTC(), start)
	assert.Equal(t, time.UTC, start.Location())

	next := NextReset(model.MissionDaily, now, loc)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2024, 4, 10, 0, 0, 0, 0, loc).UTC(), *next)
}

func TestCycleStart_WeeklyIsMonday(t *testing.T) {
	// Sunday 2024-06-16 and Monday 2024-06-10 share a cycle
	for _, day := range []int{10, 12, 16} {
		now := time.Date(2024, 6, day, 15, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), CycleStart(model.MissionWeekly, now, time.UTC), "day %d", day)
	}
	next := NextReset(model.MissionWeekly, time.Date(2024, 6, 16, 23, 59, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC), *next)
}

func TestCycleStart_DailyAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	// clocks go forward on 2024-03-31; that day is 23 hours long
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, loc)
	start := CycleStart(model.MissionDaily, now, loc)
	next := NextReset(model.MissionDaily, now, loc)
	assert.Equal(t, 23*time.Hour, next.Sub(start))
}

func TestCycleStart_AchievementNeverMoves(t *testing.T) {
	a := CycleStart(model.MissionAchievement, time.Now(), time.UTC)
	b := CycleStart(model.MissionAchievement, time.Now().AddDate(1, 0, 0), time.UTC)
	assert.Equal(t, a, b)
	assert.Nil(t, NextReset(model.MissionAchievement, time.Now(), time.UTC))
	assert.False(t, Resets(model.MissionAchievement))
	assert.True(t, Resets(model.MissionDaily))
}
