// Package badge evaluates declarative badge rules and awards badges.
package badge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/progression/errs"
	"github.com/kasuganosora/progression/progression/ledger"
	"github.com/kasuganosora/progression/progression/level"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errUnknownBadge = errors.New("badge not in catalog")

// Award is one newly earned badge. Grant is set when the badge carried an
// XP reward.
type Award struct {
	Badge model.Badge
	Grant *ledger.Result
}

// View is one catalog badge with the learner's earned state.
type View struct {
	Badge    model.Badge `json:"badge"`
	Earned   bool        `json:"earned"`
	EarnedAt *time.Time  `json:"earned_at,omitempty"`
}

type Service struct {
	db     *gorm.DB
	ledger *ledger.Service
	levels *level.Table
	logger *zap.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, l *ledger.Service, levels *level.Table, logger *zap.Logger) *Service {
	return &Service{db: db, ledger: l, levels: levels, logger: logger, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Evaluate awards every badge the learner newly qualifies for. A badge XP
// reward can satisfy another rule, so evaluation repeats until nothing new
// is earned. A broken rule or a failed award is logged and skipped.
func (s *Service) Evaluate(ctx context.Context, learnerID string) ([]Award, error) {
	var catalog []model.Badge
	if err := s.db.WithContext(ctx).Order("id").Find(&catalog).Error; err != nil {
		return nil, errs.Transient("badge.evaluate", err)
	}
	rules := make(map[string]Requirement, len(catalog))
	for _, b := range catalog {
		r, err := Parse(b.Requirement)
		if err != nil {
			s.logger.Warn("badge rule skipped",
				zap.String("badge_id", b.ID),
				zap.Error(errs.Configuration("badge.evaluate", b.ID, err)))
			continue
		}
		rules[b.ID] = r
	}

	var awards []Award
	failed := make(map[string]bool)
	for {
		st, earned, err := s.snapshot(ctx, learnerID)
		if err != nil {
			return awards, err
		}
		progressed := false
		for _, b := range catalog {
			r, ok := rules[b.ID]
			if !ok || earned[b.ID] || failed[b.ID] || !r.Met(st) {
				continue
			}
			var award *Award
			err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				var err error
				award, err = s.AwardTx(tx, learnerID, b.ID)
				return err
			})
			if err != nil {
				failed[b.ID] = true
				s.logger.Error("badge award failed",
					zap.String("learner_id", learnerID),
					zap.String("badge_id", b.ID),
					zap.Error(err))
				continue
			}
			if award != nil {
				awards = append(awards, *award)
				progressed = true
			}
		}
		if !progressed {
			return awards, nil
		}
	}
}

// AwardTx inserts the LearnerBadge row and grants the badge's XP reward in
// the caller's transaction. It returns nil when the badge was already earned.
func (s *Service) AwardTx(tx *gorm.DB, learnerID, badgeID string) (*Award, error) {
	var b model.Badge
	if err := tx.First(&b, "id = ?", badgeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Configuration("badge.award", badgeID, errUnknownBadge)
		}
		return nil, err
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.LearnerBadge{
		LearnerID: learnerID,
		BadgeID:   badgeID,
		EarnedAt:  s.now().UTC(),
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	award := &Award{Badge: b}
	if b.XPReward > 0 {
		g, err := s.ledger.GrantTx(tx, learnerID, b.XPReward, model.ReasonBadgeEarned, ledger.Opts{
			Reference: badgeID,
			CauseKey:  fmt.Sprintf("badge:%s:%s", learnerID, badgeID),
		})
		if err != nil {
			return nil, err
		}
		award.Grant = g
	}
	s.logger.Info("badge earned", zap.String("learner_id", learnerID), zap.String("badge_id", badgeID))
	return award, nil
}

func (s *Service) snapshot(ctx context.Context, learnerID string) (Stats, map[string]bool, error) {
	db := s.db.WithContext(ctx)
	st := Stats{Missions: make(map[string]bool)}

	total, err := s.ledger.TotalXP(ctx, learnerID)
	if err != nil {
		return st, nil, err
	}
	st.TotalXP = total
	st.Level = s.levels.Of(total).Level

	if st.Activity, err = s.ledger.Activity(ctx, learnerID); err != nil {
		return st, nil, err
	}

	var missionIDs []string
	if err := db.Model(&model.MissionCompletion{}).
		Where("learner_id = ?", learnerID).
		Pluck("mission_id", &missionIDs).Error; err != nil {
		return st, nil, errs.Transient("badge.snapshot", err)
	}
	st.MissionsCompleted = int64(len(missionIDs))
	for _, id := range missionIDs {
		st.Missions[id] = true
	}

	var badgeIDs []string
	if err := db.Model(&model.LearnerBadge{}).
		Where("learner_id = ?", learnerID).
		Pluck("badge_id", &badgeIDs).Error; err != nil {
		return st, nil, errs.Transient("badge.snapshot", err)
	}
	earned := make(map[string]bool, len(badgeIDs))
	for _, id := range badgeIDs {
		earned[id] = true
	}
	st.Badges = int64(len(badgeIDs))
	return st, earned, nil
}

// Count returns how many badges the learner has earned.
func (s *Service) Count(ctx context.Context, learnerID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.LearnerBadge{}).Where("learner_id = ?", learnerID).Count(&n).Error
	return n, errs.Transient("badge.count", err)
}

// List returns every catalog badge with the learner's earned state.
func (s *Service) List(ctx context.Context, learnerID string) ([]View, error) {
	db := s.db.WithContext(ctx)
	var catalog []model.Badge
	if err := db.Order("id").Find(&catalog).Error; err != nil {
		return nil, errs.Transient("badge.list", err)
	}
	var rows []model.LearnerBadge
	if err := db.Where("learner_id = ?", learnerID).Find(&rows).Error; err != nil {
		return nil, errs.Transient("badge.list", err)
	}
	earnedAt := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		earnedAt[r.BadgeID] = r.EarnedAt
	}
	out := make([]View, 0, len(catalog))
	for _, b := range catalog {
		v := View{Badge: b}
		if at, ok := earnedAt[b.ID]; ok {
			at := at
			v.Earned = true
			v.EarnedAt = &at
		}
		out = append(out, v)
	}
	return out, nil
}
