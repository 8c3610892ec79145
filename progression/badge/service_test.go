package badge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/progression/errs"
	"github.com/kasuganosora/progression/progression/ledger"
	"github.com/kasuganosora/progression/progression/level"
	"github.com/kasuganosora/progression/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	ledger *ledger.Service
	svc    *Service
}

func newFixture(t *testing.T, badges ...model.Badge) *fixture {
	db := testutil.SetupTestDB(t)
	for _, b := range badges {
		require.NoError(t, db.Create(&b).Error)
	}
	l := ledger.NewService(db, testutil.Logger())
	return &fixture{db: db, ledger: l, svc: NewService(db, l, level.Default(), testutil.Logger())}
}

func rule(id, req string, xp int64) model.Badge {
	return model.Badge{ID: id, Name: id, Requirement: datatypes.JSON(req), XPReward: xp}
}

func (f *fixture) grant(t *testing.T, learner string, amount int64, activity string) {
	_, err := f.ledger.Grant(context.Background(), learner, amount, model.ReasonMaterialCompleted, ledger.Opts{Activity: activity})
	require.NoError(t, err)
}

func ids(awards []Award) []string {
	out := make([]string, len(awards))
	for i, a := range awards {
		out[i] = a.Badge.ID
	}
	return out
}

func TestEvaluate_AwardsOnceAndGrantsReward(t *testing.T) {
	f := newFixture(t, rule("first-steps", `{"type":"total_xp","threshold":1}`, 10))
	ctx := context.Background()
	f.grant(t, "l1", 50, "material.completed")

	awards, err := f.svc.Evaluate(ctx, "l1")
	require.NoError(t, err)
	require.Equal(t, []string{"first-steps"}, ids(awards))
	require.NotNil(t, awards[0].Grant)
	assert.Equal(t, model.ReasonBadgeEarned, awards[0].Grant.Grant.Reason)

	total, _ := f.ledger.TotalXP(ctx, "l1")
	assert.Equal(t, int64(60), total)

	again, err := f.svc.Evaluate(ctx, "l1")
	require.NoError(t, err)
	assert.Empty(t, again)
	total, _ = f.ledger.TotalXP(ctx, "l1")
	assert.Equal(t, int64(60), total, "re-evaluation never re-grants")
}

func TestEvaluate_FixpointChainsRewards(t *testing.T) {
	f := newFixture(t,
		rule("a-fifty", `{"type":"total_xp","threshold":50}`, 50),
		rule("b-hundred", `{"type":"total_xp","threshold":100}`, 0),
		rule("c-collector", `{"type":"badges","threshold":2}`, 0),
	)
	f.grant(t, "l1", 50, "")

	awards, err := f.svc.Evaluate(context.Background(), "l1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a-fifty", "b-hundred", "c-collector"}, ids(awards))
}

func TestEvaluate_BadRuleIsIsolated(t *testing.T) {
	f := newFixture(t,
		rule("broken", `{"type":"karma","threshold":1}`, 0),
		rule("garbage", `not json`, 0),
		rule("ok", `{"type":"activity","kind":"material.completed","threshold":1}`, 0),
	)
	f.grant(t, "l1", 50, "material.completed")

	awards, err := f.svc.Evaluate(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, ids(awards))
}

func TestEvaluate_MissionRules(t *testing.T) {
	f := newFixture(t,
		rule("reader", `{"type":"mission","mission":"daily-reader"}`, 0),
		rule("regular", `{"type":"missions_completed","threshold":2}`, 0),
	)
	now := time.Now().UTC()
	require.NoError(t, f.db.Create(&model.MissionCompletion{LearnerID: "l1", MissionID: "daily-reader", CycleStart: now.Add(-48 * time.Hour), CompletedAt: now}).Error)

	awards, err := f.svc.Evaluate(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, []string{"reader"}, ids(awards))

	require.NoError(t, f.db.Create(&model.MissionCompletion{LearnerID: "l1", MissionID: "daily-reader", CycleStart: now.Add(-24 * time.Hour), CompletedAt: now}).Error)
	awards, err = f.svc.Evaluate(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, []string{"regular"}, ids(awards))
}

func TestEvaluate_ConcurrentAtMostOneRow(t *testing.T) {
	f := newFixture(t, rule("first-steps", `{"type":"total_xp","threshold":1}`, 10))
	f.grant(t, "l1", 5, "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Evaluate(context.Background(), "l1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var n int64
	f.db.Model(&model.LearnerBadge{}).Where("learner_id = ?", "l1").Count(&n)
	assert.Equal(t, int64(1), n)
	total, _ := f.ledger.TotalXP(context.Background(), "l1")
	assert.Equal(t, int64(15), total, "badge reward granted exactly once")
}

func TestAwardTx_UnknownBadge(t *testing.T) {
	f := newFixture(t)
	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.AwardTx(tx, "l1", "nope")
		return err
	})
	assert.True(t, errs.IsKind(err, errs.KindConfiguration))
}

func TestAwardTx_Duplicate(t *testing.T) {
	f := newFixture(t, rule("b", `{"type":"total_xp","threshold":1}`, 5))
	for i, wantNew := range []bool{true, false} {
		err := f.db.Transaction(func(tx *gorm.DB) error {
			a, err := f.svc.AwardTx(tx, "l1", "b")
			assert.Equal(t, wantNew, a != nil, "attempt %d", i)
			return err
		})
		require.NoError(t, err)
	}
	n, err := f.svc.Count(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestList_EarnedState(t *testing.T) {
	f := newFixture(t,
		rule("a", `{"type":"total_xp","threshold":1}`, 0),
		rule("b", `{"type":"total_xp","threshold":9999}`, 0),
	)
	fixed := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	f.svc.WithClock(func() time.Time { return fixed })
	f.grant(t, "l1", 10, "")
	_, err := f.svc.Evaluate(context.Background(), "l1")
	require.NoError(t, err)

	views, err := f.svc.List(context.Background(), "l1")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.True(t, views[0].Earned)
	require.NotNil(t, views[0].EarnedAt)
	assert.True(t, views[0].EarnedAt.Equal(fixed))
	assert.False(t, views[1].Earned)
	assert.Nil(t, views[1].EarnedAt)
}
