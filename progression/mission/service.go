// Package mission tracks per-learner mission progress, completes and
// rewards missions, and resets daily and weekly cycles.
package mission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/progression/badge"
	"github.com/kasuganosora/progression/progression/errs"
	"github.com/kasuganosora/progression/progression/ledger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNoReset = errors.New("achievement missions never reset")

// Completion is one mission completed and rewarded.
type Completion struct {
	LearnerID  string
	Mission    model.Mission
	CycleStart time.Time
	Grant      *ledger.Result
	Badge      *badge.Award
}

// Outcome summarizes what one Advance or SettlePending call changed.
type Outcome struct {
	Advanced  []string
	Completed []Completion
	// Pending lists missions at their target whose reward could not be
	// committed; SettlePending retries them.
	Pending []string
}

// View is the read model of one mission for one learner.
type View struct {
	Mission         model.Mission `json:"mission"`
	CurrentProgress int           `json:"current_progress"`
	IsCompleted     bool          `json:"is_completed"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	ResetAt         *time.Time    `json:"reset_at,omitempty"`
}

type Service struct {
	db     *gorm.DB
	ledger *ledger.Service
	badges *badge.Service
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, l *ledger.Service, b *badge.Service, loc *time.Location, logger *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, ledger: l, badges: b, loc: loc, logger: logger, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Location is the calendar cycles are computed in.
func (s *Service) Location() *time.Location { return s.loc }

// Advance applies one matching event to every mission tracking kind. Each
// mission is its own unit; a failure on one does not stop the others.
func (s *Service) Advance(ctx context.Context, learnerID, kind string, step int) (*Outcome, error) {
	if step < 1 {
		step = 1
	}
	var missions []model.Mission
	if err := s.db.WithContext(ctx).Where("requirement_type = ?", kind).Order("id").Find(&missions).Error; err != nil {
		return nil, errs.Transient("mission.advance", err)
	}

	out := &Outcome{}
	var failures []error
	for _, m := range missions {
		if m.RequirementCount <= 0 {
			s.logger.Warn("mission skipped",
				zap.String("mission_id", m.ID),
				zap.Error(errs.Configuration("mission.advance", m.ID, errors.New("requirement_count must be positive"))))
			continue
		}
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.advanceTx(tx, learnerID, m, step, out)
		})
		if err != nil {
			failures = append(failures, errs.Transient("mission.advance", fmt.Errorf("%s: %w", m.ID, err)))
		}
	}
	return out, errors.Join(failures...)
}

func (s *Service) advanceTx(tx *gorm.DB, learnerID string, m model.Mission, step int, out *Outcome) error {
	now := s.now().UTC()
	cycle := CycleStart(m.Type, now, s.loc)

	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.MissionProgress{
		LearnerID:  learnerID,
		MissionID:  m.ID,
		CycleStart: cycle,
		ResetAt:    NextReset(m.Type, now, s.loc),
	}).Error; err != nil {
		return err
	}
	var p model.MissionProgress
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("learner_id = ? AND mission_id = ?", learnerID, m.ID).
		First(&p).Error; err != nil {
		return err
	}

	if p.CycleStart.Before(cycle) {
		// a reward left pending in the old cycle is settled before rolling
		// over; if it still fails the row is left for SettlePending
		if !p.IsCompleted && p.CurrentProgress >= m.RequirementCount {
			if !s.tryComplete(tx, &p, m, now, out) {
				return nil
			}
		}
		p.CurrentProgress = 0
		p.IsCompleted = false
		p.CompletedAt = nil
		p.CycleStart = cycle
		p.ResetAt = NextReset(m.Type, now, s.loc)
	}

	if p.IsCompleted {
		return nil
	}
	if p.CurrentProgress < m.RequirementCount {
		if step >= m.RequirementCount-p.CurrentProgress {
			p.CurrentProgress = m.RequirementCount
		} else {
			p.CurrentProgress += step
		}
		out.Advanced = append(out.Advanced, m.ID)
	}
	if err := tx.Save(&p).Error; err != nil {
		return err
	}
	if p.CurrentProgress >= m.RequirementCount {
		s.tryComplete(tx, &p, m, now, out)
	}
	return nil
}

// tryComplete runs complete and records the result in out. A failed
// completion leaves the row at its target, not completed.
func (s *Service) tryComplete(tx *gorm.DB, p *model.MissionProgress, m model.Mission, now time.Time, out *Outcome) bool {
	c, err := s.complete(tx, p, m, now)
	if err != nil {
		s.logger.Error("mission reward failed, left pending",
			zap.String("learner_id", p.LearnerID),
			zap.String("mission_id", m.ID),
			zap.Error(err))
		out.Pending = append(out.Pending, m.ID)
		return false
	}
	if c != nil {
		out.Completed = append(out.Completed, *c)
	}
	return true
}

// complete logs the completion, grants the rewards and marks the row
// completed inside a savepoint, so a failed reward rolls back only this
// step. It returns nil when the cycle was already logged.
func (s *Service) complete(tx *gorm.DB, p *model.MissionProgress, m model.Mission, now time.Time) (*Completion, error) {
	var c *Completion
	err := tx.Transaction(func(sp *gorm.DB) error {
		entry := model.MissionCompletion{
			LearnerID:   p.LearnerID,
			MissionID:   m.ID,
			CycleStart:  p.CycleStart,
			CompletedAt: now,
		}
		res := sp.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			c = &Completion{LearnerID: p.LearnerID, Mission: m, CycleStart: p.CycleStart}
			if m.XPReward > 0 {
				g, err := s.ledger.GrantTx(sp, p.LearnerID, m.XPReward, model.ReasonMissionCompleted, ledger.Opts{
					Reference: m.ID,
					CauseKey:  fmt.Sprintf("mission:%s:%s:%d", p.LearnerID, m.ID, p.CycleStart.Unix()),
				})
				if err != nil {
					return err
				}
				c.Grant = g
				if err := sp.Model(&entry).Update("xp_grant_id", g.Grant.ID).Error; err != nil {
					return err
				}
			}
			if m.BadgeReward != "" {
				a, err := s.badges.AwardTx(sp, p.LearnerID, m.BadgeReward)
				if err != nil {
					return err
				}
				c.Badge = a
			}
		}
		return sp.Model(&model.MissionProgress{}).Where("id = ?", p.ID).
			Updates(map[string]interface{}{"is_completed": true, "completed_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	p.IsCompleted = true
	p.CompletedAt = &now
	if c != nil {
		s.logger.Info("mission completed",
			zap.String("learner_id", p.LearnerID),
			zap.String("mission_id", m.ID),
			zap.Time("cycle_start", p.CycleStart))
	}
	return c, nil
}

// SettlePending retries the reward of every row stuck at its target without
// a completion.
func (s *Service) SettlePending(ctx context.Context) (*Outcome, error) {
	var rows []model.MissionProgress
	if err := s.db.WithContext(ctx).
		Joins("JOIN missions ON missions.id = mission_progresses.mission_id").
		Where("mission_progresses.is_completed = ? AND mission_progresses.current_progress >= missions.requirement_count", false).
		Find(&rows).Error; err != nil {
		return nil, errs.Transient("mission.settle", err)
	}

	out := &Outcome{}
	var failures []error
	for _, row := range rows {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var m model.Mission
			if err := tx.First(&m, "id = ?", row.MissionID).Error; err != nil {
				return err
			}
			var p model.MissionProgress
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", row.ID).Error; err != nil {
				return err
			}
			if p.IsCompleted || p.CurrentProgress < m.RequirementCount {
				return nil
			}
			s.tryComplete(tx, &p, m, s.now().UTC(), out)
			return nil
		})
		if err != nil {
			failures = append(failures, errs.Transient("mission.settle", err))
		}
	}
	if len(out.Completed) > 0 || len(out.Pending) > 0 {
		s.logger.Info("pending missions settled",
			zap.Int("completed", len(out.Completed)),
			zap.Int("still_pending", len(out.Pending)))
	}
	return out, errors.Join(failures...)
}

// Reset starts a new cycle for every progress row of missions of typ whose
// cycle predates the current boundary. Rows with a pending reward are left
// for SettlePending and roll over lazily on their next event.
func (s *Service) Reset(ctx context.Context, typ model.MissionType) (int64, error) {
	if !Resets(typ) {
		return 0, errs.Validation("mission.reset", "type", errNoReset)
	}
	now := s.now()
	boundary := CycleStart(typ, now, s.loc)
	db := s.db.WithContext(ctx)

	ofType := db.Model(&model.Mission{}).Select("id").Where("type = ?", typ)
	target := db.Model(&model.Mission{}).Select("requirement_count").Where("missions.id = mission_progresses.mission_id")
	res := db.Model(&model.MissionProgress{}).
		Where("mission_id IN (?)", ofType).
		Where("cycle_start < ?", boundary).
		Where("NOT (is_completed = ? AND current_progress >= (?))", false, target).
		Updates(map[string]interface{}{
			"current_progress": 0,
			"is_completed":     false,
			"completed_at":     nil,
			"cycle_start":      boundary,
			"reset_at":         NextReset(typ, now, s.loc),
		})
	if res.Error != nil {
		return 0, errs.Transient("mission.reset", res.Error)
	}
	s.logger.Info("missions reset",
		zap.String("type", typ),
		zap.Time("boundary", boundary),
		zap.Int64("rows", res.RowsAffected))
	return res.RowsAffected, nil
}

// Progress lists every mission with the learner's state in the current
// cycle. A row from an elapsed cycle reads as reset; nothing is written.
func (s *Service) Progress(ctx context.Context, learnerID string) ([]View, error) {
	db := s.db.WithContext(ctx)
	var missions []model.Mission
	if err := db.Order("type").Order("id").Find(&missions).Error; err != nil {
		return nil, errs.Transient("mission.progress", err)
	}
	var rows []model.MissionProgress
	if err := db.Where("learner_id = ?", learnerID).Find(&rows).Error; err != nil {
		return nil, errs.Transient("mission.progress", err)
	}
	byMission := make(map[string]model.MissionProgress, len(rows))
	for _, r := range rows {
		byMission[r.MissionID] = r
	}

	now := s.now()
	out := make([]View, 0, len(missions))
	for _, m := range missions {
		v := View{Mission: m, ResetAt: NextReset(m.Type, now, s.loc)}
		if r, ok := byMission[m.ID]; ok && !r.CycleStart.Before(CycleStart(m.Type, now, s.loc)) {
			v.CurrentProgress = r.CurrentProgress
			v.IsCompleted = r.IsCompleted
			v.CompletedAt = r.CompletedAt
		}
		out = append(out, v)
	}
	return out, nil
}

// CompletedCount is the learner's lifetime number of mission completions.
func (s *Service) CompletedCount(ctx context.Context, learnerID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.MissionCompletion{}).Where("learner_id = ?", learnerID).Count(&n).Error
	return n, errs.Transient("mission.completed_count", err)
}
