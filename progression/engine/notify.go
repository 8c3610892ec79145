package engine

import (
	"context"
	"time"

	"github.com/kasuganosora/progression/audit"
	"github.com/kasuganosora/progression/hook"
	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/progression/errs"
	"github.com/kasuganosora/progression/progression/intake"
	"github.com/kasuganosora/progression/progression/ledger"
)

func (e *Engine) fire(ctx context.Context, n hook.Notification) {
	if e.Hooks == nil {
		return
	}
	e.Hooks.Fire(ctx, n)
}

func (e *Engine) fireGrant(ctx context.Context, g ledger.Result) {
	e.fire(ctx, hook.Notification{
		Event:     hook.XPGranted,
		LearnerID: g.Grant.LearnerID,
		Amount:    g.Grant.Amount,
		Reason:    g.Grant.Reason,
		TotalXP:   g.TotalAfter,
	})
}

// fireLevelUp fires once for the whole move from before to after and
// reports whether the level rose.
func (e *Engine) fireLevelUp(ctx context.Context, learnerID string, before, after int64) bool {
	from, to := e.Levels.Of(before), e.Levels.Of(after)
	if to.Level <= from.Level {
		return false
	}
	e.fire(ctx, hook.Notification{
		Event:     hook.LevelUp,
		LearnerID: learnerID,
		TotalXP:   after,
		FromLevel: from.Level,
		ToLevel:   to.Level,
		LevelName: to.Name,
	})
	return true
}

func (e *Engine) journal(ev intake.Event, meta Meta, start time.Time, err error) {
	if e.Audit == nil {
		return
	}
	entry := audit.Entry{
		TraceID:    meta.TraceID,
		LearnerID:  ev.LearnerID,
		Kind:       ev.Kind,
		Status:     model.EventAccepted,
		Payload:    ev,
		IP:         meta.IP,
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
		switch errs.KindOf(err) {
		case errs.KindValidation:
			entry.Status = model.EventRejected
		case errs.KindConflict:
			entry.Status = model.EventConflict
		default:
			entry.Status = model.EventFailed
		}
	}
	e.Audit.Log(entry)
}
