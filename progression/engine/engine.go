// Package engine orchestrates the progression flow for an incoming event and
// serves the read and admin operations over the progression state.
package engine

import (
	"context"
	"time"

	"github.com/kasuganosora/progression/audit"
	"github.com/kasuganosora/progression/hook"
	"github.com/kasuganosora/progression/progression/badge"
	"github.com/kasuganosora/progression/progression/directory"
	"github.com/kasuganosora/progression/progression/intake"
	"github.com/kasuganosora/progression/progression/leaderboard"
	"github.com/kasuganosora/progression/progression/ledger"
	"github.com/kasuganosora/progression/progression/level"
	"github.com/kasuganosora/progression/progression/mission"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the services the engine drives. Hooks and Audit are optional.
type Deps struct {
	Intake      *intake.Service
	Directory   *directory.Service
	Ledger      *ledger.Service
	Levels      *level.Table
	Badges      *badge.Service
	Missions    *mission.Service
	Leaderboard *leaderboard.Service
	Hooks       *hook.HookCenter
	Audit       *audit.Service
}

type Engine struct {
	Deps
	logger *zap.Logger
}

func New(d Deps, logger *zap.Logger) *Engine {
	return &Engine{Deps: d, logger: logger}
}

// Meta is request metadata journaled with the event.
type Meta struct {
	TraceID string
	IP      string
}

// Result is what an accepted event changed.
type Result struct {
	Events          []intake.Normalized `json:"-"`
	Grants          []ledger.Result     `json:"-"`
	XPAwarded       int64               `json:"xp_awarded"`
	TotalXP         int64               `json:"total_xp"`
	Level           level.Level         `json:"level"`
	LeveledUp       bool                `json:"leveled_up"`
	BadgesEarned    []string            `json:"badges_earned"`
	MissionsDone    []string            `json:"missions_completed"`
	MissionsPending []string            `json:"missions_pending,omitempty"`
}

// Submit runs one event through intake, the ledger, the mission tracker and
// the badge evaluator. The event is accepted once its grants commit;
// mission and badge failures after that point are logged, not returned.
func (e *Engine) Submit(ctx context.Context, ev intake.Event, meta Meta) (*Result, error) {
	start := time.Now()
	res, err := e.submit(ctx, ev)
	e.journal(ev, meta, start, err)
	return res, err
}

func (e *Engine) submit(ctx context.Context, ev intake.Event) (*Result, error) {
	events, err := e.Intake.Submit(ctx, ev)
	if err != nil {
		return nil, err
	}
	learnerID := events[0].LearnerID
	res := &Result{Events: events, BadgesEarned: []string{}, MissionsDone: []string{}}

	before, err := e.Ledger.TotalXP(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	err = e.Ledger.Atomic(ctx, func(tx *gorm.DB) error {
		for _, n := range events {
			if n.XP <= 0 {
				if err := e.Ledger.RecordActivityTx(tx, n.LearnerID, n.Kind, n.RegisteredAt); err != nil {
					return err
				}
				continue
			}
			g, err := e.Ledger.GrantTx(tx, n.LearnerID, n.XP, n.Reason, ledger.Opts{
				Reference:    n.Reference,
				CauseKey:     n.CauseKey,
				Activity:     n.Kind,
				RegisteredAt: n.RegisteredAt,
			})
			if err != nil {
				return err
			}
			res.Grants = append(res.Grants, *g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, g := range res.Grants {
		res.XPAwarded += g.Grant.Amount
		e.fireGrant(ctx, g)
	}

	for _, n := range events {
		out, err := e.Missions.Advance(ctx, n.LearnerID, n.Kind, n.Step)
		if err != nil {
			e.logger.Error("mission advance failed",
				zap.String("learner_id", n.LearnerID),
				zap.String("kind", n.Kind),
				zap.Error(err))
		}
		if out != nil {
			e.collectMissions(ctx, res, out)
		}
	}

	awards, err := e.Badges.Evaluate(ctx, learnerID)
	if err != nil {
		e.logger.Error("badge evaluation failed", zap.String("learner_id", learnerID), zap.Error(err))
	}
	e.collectAwards(ctx, res, learnerID, awards)

	after, err := e.Ledger.TotalXP(ctx, learnerID)
	if err != nil {
		// the event committed; report what the grants saw
		e.logger.Warn("total read failed", zap.String("learner_id", learnerID), zap.Error(err))
		after = before + res.XPAwarded
	}
	res.TotalXP = after
	res.Level = e.Levels.Of(after)
	res.LeveledUp = e.fireLevelUp(ctx, learnerID, before, after)
	return res, nil
}

func (e *Engine) collectMissions(ctx context.Context, res *Result, out *mission.Outcome) {
	for _, c := range out.Completed {
		res.MissionsDone = append(res.MissionsDone, c.Mission.ID)
		if c.Grant != nil {
			res.Grants = append(res.Grants, *c.Grant)
			res.XPAwarded += c.Grant.Grant.Amount
			e.fireGrant(ctx, *c.Grant)
		}
		e.fire(ctx, hook.Notification{Event: hook.MissionCompleted, LearnerID: c.LearnerID, MissionID: c.Mission.ID})
		if c.Badge != nil {
			e.collectAwards(ctx, res, c.LearnerID, []badge.Award{*c.Badge})
		}
	}
	res.MissionsPending = append(res.MissionsPending, out.Pending...)
}

func (e *Engine) collectAwards(ctx context.Context, res *Result, learnerID string, awards []badge.Award) {
	for _, a := range awards {
		res.BadgesEarned = append(res.BadgesEarned, a.Badge.ID)
		if a.Grant != nil {
			res.Grants = append(res.Grants, *a.Grant)
			res.XPAwarded += a.Grant.Grant.Amount
			e.fireGrant(ctx, *a.Grant)
		}
		e.fire(ctx, hook.Notification{Event: hook.BadgeEarned, LearnerID: learnerID, BadgeID: a.Badge.ID})
	}
}
