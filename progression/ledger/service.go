// Package ledger is the append-only XP ledger and the only writer of
// LearnerProgress.total_xp.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/progression/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNothingToCorrect = errors.New("correction would not change total_xp")

// Opts carries the optional parts of a grant.
type Opts struct {
	Reference string
	// CauseKey, when set, makes the grant idempotent: a second grant with the
	// same key is a Conflict.
	CauseKey string
	// Activity, when set, increments the learner's counter for that event
	// kind in the same transaction.
	Activity string
	// RegisteredAt seeds LearnerProgress.registered_at on first grant.
	RegisteredAt time.Time
}

// Result is a committed grant with the totals around it.
type Result struct {
	Grant       model.XPGrant
	TotalBefore int64
	TotalAfter  int64
}

// Page is one page of XP history, newest first.
type Page struct {
	Items []model.XPGrant `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int64           `json:"total"`
}

// Service writes and reads the XP ledger.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a ledger Service.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Grant appends one positive grant and bumps total_xp atomically.
func (s *Service) Grant(ctx context.Context, learnerID string, amount int64, reason model.XPReason, opts Opts) (*Result, error) {
	var res *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.GrantTx(tx, learnerID, amount, reason, opts)
		return err
	})
	if err != nil {
		return nil, errs.Transient("ledger.grant", err)
	}
	return res, nil
}

// GrantTx is Grant inside the caller's transaction.
func (s *Service) GrantTx(tx *gorm.DB, learnerID string, amount int64, reason model.XPReason, opts Opts) (*Result, error) {
	if amount <= 0 {
		return nil, errs.Validation("ledger.grant", "amount", errs.ErrInvalidAmount)
	}
	return s.apply(tx, learnerID, amount, reason, opts)
}

// RecordActivity bumps an activity counter without granting XP. It is used
// for event kinds configured to be worth 0 XP.
func (s *Service) RecordActivity(ctx context.Context, learnerID, kind string, registeredAt time.Time) error {
	return s.Atomic(ctx, func(tx *gorm.DB) error {
		return s.RecordActivityTx(tx, learnerID, kind, registeredAt)
	})
}

// RecordActivityTx is RecordActivity inside the caller's transaction.
func (s *Service) RecordActivityTx(tx *gorm.DB, learnerID, kind string, registeredAt time.Time) error {
	if learnerID == "" {
		return errs.Validation("ledger.activity", "learner_id", errs.ErrUnknownLearner)
	}
	if err := s.ensureProgress(tx, learnerID, registeredAt); err != nil {
		return err
	}
	return incrementActivity(tx, learnerID, kind)
}

// Atomic runs fn in one transaction, so several GrantTx and
// RecordActivityTx calls commit or roll back together.
func (s *Service) Atomic(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return errs.Transient("ledger.atomic", s.db.WithContext(ctx).Transaction(fn))
}

// Correct applies an administrative correction. delta may be negative; it
// is clamped so total_xp never drops below zero.
func (s *Service) Correct(ctx context.Context, learnerID string, delta int64, note string) (*Result, error) {
	if delta == 0 {
		return nil, errs.Validation("ledger.correct", "delta", errNothingToCorrect)
	}
	var res *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureProgress(tx, learnerID, time.Time{}); err != nil {
			return err
		}
		var p model.LearnerProgress
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&p, "learner_id = ?", learnerID).Error; err != nil {
			return err
		}
		amount := delta
		if p.TotalXP+amount < 0 {
			amount = -p.TotalXP
		}
		if amount == 0 {
			return errs.Validation("ledger.correct", "delta", errNothingToCorrect)
		}
		var err error
		res, err = s.apply(tx, learnerID, amount, model.ReasonAdminCorrection, Opts{Reference: note})
		return err
	})
	if err != nil {
		return nil, errs.Transient("ledger.correct", err)
	}
	s.logger.Info("xp corrected",
		zap.String("learner_id", learnerID),
		zap.Int64("delta", res.Grant.Amount),
		zap.Int64("total_xp", res.TotalAfter))
	return res, nil
}

func (s *Service) apply(tx *gorm.DB, learnerID string, amount int64, reason model.XPReason, opts Opts) (*Result, error) {
	if learnerID == "" {
		return nil, errs.Validation("ledger.grant", "learner_id", errs.ErrUnknownLearner)
	}
	var causeKey *string
	if opts.CauseKey != "" {
		var n int64
		if err := tx.Model(&model.XPGrant{}).Where("cause_key = ?", opts.CauseKey).Count(&n).Error; err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, errs.Conflict("ledger.grant", errs.ErrDuplicateCause)
		}
		key := opts.CauseKey
		causeKey = &key
	}

	if err := s.ensureProgress(tx, learnerID, opts.RegisteredAt); err != nil {
		return nil, err
	}

	grant := model.XPGrant{
		LearnerID: learnerID,
		Amount:    amount,
		Reason:    reason,
		Reference: opts.Reference,
		CauseKey:  causeKey,
		CreatedAt: s.now().UTC(),
	}
	if err := tx.Create(&grant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Conflict("ledger.grant", errs.ErrDuplicateCause)
		}
		return nil, err
	}

	if err := tx.Model(&model.LearnerProgress{}).
		Where("learner_id = ?", learnerID).
		Update("total_xp", gorm.Expr("total_xp + ?", amount)).Error; err != nil {
		return nil, err
	}
	var p model.LearnerProgress
	if err := tx.Select("total_xp").First(&p, "learner_id = ?", learnerID).Error; err != nil {
		return nil, err
	}
	after := p.TotalXP

	if opts.Activity != "" {
		if err := incrementActivity(tx, learnerID, opts.Activity); err != nil {
			return nil, err
		}
	}
	return &Result{Grant: grant, TotalBefore: after - amount, TotalAfter: after}, nil
}

func (s *Service) ensureProgress(tx *gorm.DB, learnerID string, registeredAt time.Time) error {
	if registeredAt.IsZero() {
		registeredAt = s.now()
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.LearnerProgress{
		LearnerID:    learnerID,
		RegisteredAt: registeredAt.UTC(),
	}).Error
}

func incrementActivity(tx *gorm.DB, learnerID, kind string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "learner_id"}, {Name: "kind"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("activity_counts.count + 1")}),
	}).Create(&model.ActivityCount{LearnerID: learnerID, Kind: kind, Count: 1}).Error
}

// TotalXP returns the learner's total, 0 when the learner has no grants.
func (s *Service) TotalXP(ctx context.Context, learnerID string) (int64, error) {
	var totals []int64
	err := s.db.WithContext(ctx).Model(&model.LearnerProgress{}).
		Where("learner_id = ?", learnerID).
		Pluck("total_xp", &totals).Error
	if err != nil {
		return 0, errs.Transient("ledger.total", err)
	}
	if len(totals) == 0 {
		return 0, nil
	}
	return totals[0], nil
}

// Activity returns the learner's per-kind event counters.
func (s *Service) Activity(ctx context.Context, learnerID string) (map[string]int64, error) {
	var rows []model.ActivityCount
	if err := s.db.WithContext(ctx).Where("learner_id = ?", learnerID).Find(&rows).Error; err != nil {
		return nil, errs.Transient("ledger.activity", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Kind] = r.Count
	}
	return out, nil
}

// History returns a page of grants, newest first. page starts at 1; limit
// is clamped to [1,100] and defaults to 20.
func (s *Service) History(ctx context.Context, learnerID string, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	scope := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.XPGrant{}).Where("learner_id = ?", learnerID)
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, errs.Transient("ledger.history", err)
	}
	items := make([]model.XPGrant, 0, limit)
	if err := scope().Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&items).Error; err != nil {
		return nil, errs.Transient("ledger.history", err)
	}
	return &Page{Items: items, Page: page, Limit: limit, Total: total}, nil
}
