package engine

import (
	"context"
	"math"
	"testing"

	"github.com/kasuganosora/progression/progression/catalog"
	"github.com/kasuganosora/progression/progression/errs"
	"github.com/kasuganosora/progression/progression/intake"
	"github.com/kasuganosora/progression/progression/mission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDefaultCatalog(t *testing.T, f *fixture) {
	file, err := catalog.Load("")
	require.NoError(t, err)
	c := catalog.Compile(file)
	require.Empty(t, c.Problems)
	require.NoError(t, catalog.Seed(context.Background(), f.db, c))
}

func missionView(t *testing.T, f *fixture, learner, id string) mission.View {
	views, err := f.eng.GetMissions(context.Background(), learner)
	require.NoError(t, err)
	for _, v := range views {
		if v.Mission.ID == id {
			return v
		}
	}
	t.Fatalf("mission %s not listed", id)
	return mission.View{}
}

func TestSubmit_DefaultCatalogDailyReader(t *testing.T) {
	f := newFixture(t)
	seedDefaultCatalog(t, f)
	ctx := context.Background()

	var res *Result
	for _, ref := range []string{"m1", "m2", "m3"} {
		var err error
		res, err = f.eng.Submit(ctx, material("alice", ref), Meta{})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"daily-reader"}, res.MissionsDone)
	assert.Equal(t, int64(190), res.TotalXP)

	v := missionView(t, f, "alice", "daily-reader")
	assert.Equal(t, 3, v.CurrentProgress)
	assert.True(t, v.IsCompleted)

	badges, err := f.eng.GetBadges(ctx, "alice")
	require.NoError(t, err)
	earned := map[string]bool{}
	for _, b := range badges {
		earned[b.Badge.ID] = b.Earned
	}
	assert.True(t, earned["first-steps"])
	assert.False(t, earned["bookworm"])
	assert.Len(t, badges, 8)
}

func TestSubmit_DefaultCatalogCourseFinisher(t *testing.T) {
	f := newFixture(t)
	seedDefaultCatalog(t, f)

	res, err := f.eng.Submit(context.Background(), intake.Event{LearnerID: "bob", Kind: intake.KindCourseCompleted, Reference: "c1"}, Meta{})
	require.NoError(t, err)
	assert.Equal(t, []string{"course-finisher"}, res.MissionsDone)
	assert.Contains(t, res.BadgesEarned, "graduate")
	// 200 for the course, 250 from the mission
	assert.Equal(t, int64(450), res.TotalXP)
}

func TestSubmit_QuizMagnitudeBounded(t *testing.T) {
	f := newFixture(t)
	seedDefaultCatalog(t, f)
	ctx := context.Background()

	_, err := f.eng.Submit(ctx, intake.Event{LearnerID: "carol", Kind: intake.KindQuizCompleted, Magnitude: ptr(int64(math.MaxInt64/10 + 1))}, Meta{})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
	assert.Equal(t, "magnitude", errs.FieldOf(err))

	total, err := f.eng.Ledger.TotalXP(ctx, "carol")
	require.NoError(t, err)
	assert.Zero(t, total)

	// a large but valid answer count caps the weekly quiz at its target
	res, err := f.eng.Submit(ctx, intake.Event{LearnerID: "carol", Kind: intake.KindQuizCompleted, Magnitude: ptr(int64(80))}, Meta{})
	require.NoError(t, err)
	assert.Contains(t, res.MissionsDone, "weekly-quizzer")
	v := missionView(t, f, "carol", "weekly-quizzer")
	assert.Equal(t, 50, v.CurrentProgress)
}
