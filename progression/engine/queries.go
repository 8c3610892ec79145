package engine

import (
	"context"
	"time"

	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/progression/badge"
	"github.com/kasuganosora/progression/progression/errs"
	"github.com/kasuganosora/progression/progression/leaderboard"
	"github.com/kasuganosora/progression/progression/ledger"
	"github.com/kasuganosora/progression/progression/level"
	"github.com/kasuganosora/progression/progression/mission"
	"go.uber.org/zap"
)

// Stats is the learner summary served by GetStats.
type Stats struct {
	LearnerID string `json:"learner_id"`
	TotalXP   int64  `json:"total_xp"`
	level.Level
	TotalBadges       int64 `json:"total_badges"`
	CompletedMissions int64 `json:"completed_missions"`
	// Rank is 0 when the learner is not on the leaderboard.
	Rank int `json:"rank"`
}

// GetStats reads the learner's progression summary. Level fields are
// derived from total_xp on every call.
func (e *Engine) GetStats(ctx context.Context, learnerID string) (*Stats, error) {
	if _, err := e.Directory.Lookup(ctx, learnerID); err != nil {
		return nil, err
	}
	total, err := e.Ledger.TotalXP(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	badges, err := e.Badges.Count(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	missions, err := e.Missions.CompletedCount(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	rank, err := e.Leaderboard.Rank(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	return &Stats{
		LearnerID:         learnerID,
		TotalXP:           total,
		Level:             e.Levels.Of(total),
		TotalBadges:       badges,
		CompletedMissions: missions,
		Rank:              rank,
	}, nil
}

func (e *Engine) GetBadges(ctx context.Context, learnerID string) ([]badge.View, error) {
	if _, err := e.Directory.Lookup(ctx, learnerID); err != nil {
		return nil, err
	}
	return e.Badges.List(ctx, learnerID)
}

func (e *Engine) GetMissions(ctx context.Context, learnerID string) ([]mission.View, error) {
	if _, err := e.Directory.Lookup(ctx, learnerID); err != nil {
		return nil, err
	}
	return e.Missions.Progress(ctx, learnerID)
}

func (e *Engine) GetXPHistory(ctx context.Context, learnerID string, page, limit int) (*ledger.Page, error) {
	if _, err := e.Directory.Lookup(ctx, learnerID); err != nil {
		return nil, err
	}
	return e.Ledger.History(ctx, learnerID, page, limit)
}

func (e *Engine) GetLeaderboard(ctx context.Context, n int) ([]leaderboard.Entry, error) {
	return e.Leaderboard.Top(ctx, n)
}

// SyncLearner mirrors one learner from the user directory.
func (e *Engine) SyncLearner(ctx context.Context, id, displayName string, registeredAt time.Time) (*model.Learner, error) {
	return e.Directory.Upsert(ctx, id, displayName, registeredAt)
}

// CorrectXP applies an administrative correction. A raise can qualify the
// learner for badges, so rules are evaluated afterwards.
func (e *Engine) CorrectXP(ctx context.Context, learnerID string, delta int64, note string) (*Result, error) {
	if _, err := e.Directory.Lookup(ctx, learnerID); err != nil {
		return nil, err
	}
	g, err := e.Ledger.Correct(ctx, learnerID, delta, note)
	if err != nil {
		return nil, err
	}
	res := &Result{Grants: []ledger.Result{*g}, XPAwarded: g.Grant.Amount, BadgesEarned: []string{}, MissionsDone: []string{}}
	e.fireGrant(ctx, *g)

	if g.Grant.Amount > 0 {
		awards, err := e.Badges.Evaluate(ctx, learnerID)
		if err != nil {
			e.logger.Error("badge evaluation failed", zap.String("learner_id", learnerID), zap.Error(err))
		}
		e.collectAwards(ctx, res, learnerID, awards)
	}
	after, err := e.Ledger.TotalXP(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	res.TotalXP = after
	res.Level = e.Levels.Of(after)
	res.LeveledUp = e.fireLevelUp(ctx, learnerID, g.TotalBefore, after)
	return res, nil
}

// SettleMissions retries pending mission rewards and notifies for every
// mission it completes.
func (e *Engine) SettleMissions(ctx context.Context) (*mission.Outcome, error) {
	out, err := e.Missions.SettlePending(ctx)
	if out != nil {
		e.collectMissions(ctx, &Result{}, out)
	}
	return out, err
}

// ResetMissions settles pending rewards, then starts the new cycle for
// missions of typ.
func (e *Engine) ResetMissions(ctx context.Context, typ model.MissionType) (int64, error) {
	if _, err := e.SettleMissions(ctx); err != nil {
		e.logger.Warn("settle before reset incomplete", zap.String("type", typ), zap.Error(err))
	}
	return e.Missions.Reset(ctx, typ)
}

func (e *Engine) RefreshLeaderboard(ctx context.Context) (*leaderboard.Snapshot, error) {
	return e.Leaderboard.Refresh(ctx)
}

// RecentEvents returns the newest intake journal rows, optionally for one
// learner.
func (e *Engine) RecentEvents(ctx context.Context, learnerID string, limit int) ([]model.EventLog, error) {
	if e.Audit == nil {
		return []model.EventLog{}, nil
	}
	rows, err := e.Audit.Recent(ctx, learnerID, limit)
	return rows, errs.Transient("engine.recent_events", err)
}
