package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/progression/directory"
	"github.com/kasuganosora/progression/progression/errs"
	"github.com/kasuganosora/progression/progression/ledger"
	"github.com/kasuganosora/progression/progression/level"
	"github.com/kasuganosora/progression/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *ledger.Service, *directory.Service) {
	db := testutil.SetupTestDB(t)
	c := testutil.SetupTestCache(t)
	l := ledger.NewService(db, testutil.Logger())
	d := directory.NewService(db, testutil.Logger())
	return NewService(db, c, level.Default(), 10, testutil.Logger()), l, d
}

func seed(t *testing.T, l *ledger.Service, d *directory.Service, id string, xp int64, registered time.Time) {
	ctx := context.Background()
	_, err := d.Upsert(ctx, id, "name-"+id, registered)
	require.NoError(t, err)
	if xp > 0 {
		_, err = l.Grant(ctx, id, xp, model.ReasonMaterialCompleted, ledger.Opts{RegisteredAt: registered})
		require.NoError(t, err)
	}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.LearnerID
	}
	return out
}

func TestRefresh_OrderAndTieBreak(t *testing.T) {
	svc, l, d := setup(t)
	ctx := context.Background()
	seed(t, l, d, "carol", 300, base.Add(2*time.Hour))
	seed(t, l, d, "bob", 300, base.Add(time.Hour))
	seed(t, l, d, "alice", 500, base.Add(3*time.Hour))
	seed(t, l, d, "dave", 300, base.Add(time.Hour))
	seed(t, l, d, "zero", 0, base)

	snap, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "dave", "carol"}, ids(snap.Entries))

	first := snap.Entries[0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "name-alice", first.DisplayName)
	assert.Equal(t, int64(500), first.TotalXP)
	assert.Equal(t, 4, first.Level)
	assert.Equal(t, "Achiever", first.LevelName)

	rank, err := svc.Rank(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 4, rank)

	rank, err = svc.Rank(ctx, "zero")
	require.NoError(t, err)
	assert.Zero(t, rank, "zero xp is unranked")
}

func TestSnapshotIsStaleUntilRefresh(t *testing.T) {
	svc, l, d := setup(t)
	ctx := context.Background()
	seed(t, l, d, "a", 100, base)
	seed(t, l, d, "b", 50, base)

	top, err := svc.Top(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(top))

	_, err = l.Grant(ctx, "b", 100, model.ReasonForumPost, ledger.Opts{})
	require.NoError(t, err)
	top, err = svc.Top(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(top), "served from the stored snapshot")

	_, err = svc.Refresh(ctx)
	require.NoError(t, err)
	top, err = svc.Top(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(top))
}

func TestTop_Limits(t *testing.T) {
	svc, l, d := setup(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		seed(t, l, d, id, int64(1000-i), base)
	}
	top, err := svc.Top(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(top))

	top, err = svc.Top(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, top, 10)

	top, err = svc.Top(ctx, 500)
	require.NoError(t, err)
	assert.Len(t, top, 10)
}

func TestBadgeCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, testutil.SetupTestCache(t), level.Default(), 10, testutil.Logger())
	_, err := ledger.NewService(db, testutil.Logger()).Grant(context.Background(), "a", 10, model.ReasonForumPost, ledger.Opts{})
	require.NoError(t, err)
	require.NoError(t, db.Create(&model.LearnerBadge{LearnerID: "a", BadgeID: "x", EarnedAt: base}).Error)
	require.NoError(t, db.Create(&model.LearnerBadge{LearnerID: "a", BadgeID: "y", EarnedAt: base}).Error)

	top, err := svc.Top(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(2), top[0].BadgeCount)
	assert.Empty(t, top[0].DisplayName, "learner missing from the directory")
}

func TestRefresh_LockHeld(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c := testutil.SetupTestCache(t)
	svc := NewService(db, c, level.Default(), 10, testutil.Logger())
	ctx := context.Background()
	_, err := ledger.NewService(db, testutil.Logger()).Grant(ctx, "a", 10, model.ReasonForumPost, ledger.Opts{})
	require.NoError(t, err)

	ok, err := c.SetNX(ctx, lockKey, "other", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.Refresh(ctx)
	assert.ErrorIs(t, err, ErrRefreshInProgress)
	assert.True(t, errs.IsKind(err, errs.KindConflict))

	// a cold read still answers, without storing
	top, err := svc.Top(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, top, 1)
	exists, err := c.Exists(ctx, snapshotKey)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Del(ctx, lockKey))
	_, err = svc.Refresh(ctx)
	require.NoError(t, err)
	held, err := c.Exists(ctx, lockKey)
	require.NoError(t, err)
	assert.False(t, held, "lock released after refresh")
}

func TestEmptyBoard(t *testing.T) {
	svc, _, _ := setup(t)
	top, err := svc.Top(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, top)
}
