// Package leaderboard maintains the ranked read model of learners by XP.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kasuganosora/progression/cache"
	"github.com/kasuganosora/progression/progression/errs"
	"github.com/kasuganosora/progression/progression/level"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	snapshotKey = "leaderboard:snapshot"
	lockKey     = "leaderboard:refresh_lock"
	lockTTL     = 30 * time.Second
)

// ErrRefreshInProgress is returned by Refresh while another refresh holds
// the lock.
var ErrRefreshInProgress = errors.New("leaderboard refresh already running")

// Entry is one ranked learner.
type Entry struct {
	Rank        int    `json:"rank"`
	LearnerID   string `json:"learner_id"`
	DisplayName string `json:"display_name,omitempty"`
	TotalXP     int64  `json:"total_xp"`
	Level       int    `json:"current_level"`
	LevelName   string `json:"level_name"`
	BadgeCount  int64  `json:"badge_count"`
}

// Snapshot is the stored projection, every ranked learner in rank order.
type Snapshot struct {
	GeneratedAt time.Time `json:"generated_at"`
	Entries     []Entry   `json:"entries"`
}

type row struct {
	LearnerID   string
	DisplayName string
	TotalXP     int64
	BadgeCount  int64
}

type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	levels *level.Table
	size   int
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a leaderboard Service. size caps Top.
func NewService(db *gorm.DB, c cache.Cache, levels *level.Table, size int, logger *zap.Logger) *Service {
	if size <= 0 {
		size = 100
	}
	return &Service{db: db, cache: c, levels: levels, size: size, logger: logger, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Refresh recomputes the projection and replaces the stored snapshot.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	ok, err := s.cache.SetNX(ctx, lockKey, "1", lockTTL)
	if err != nil {
		return nil, errs.Transient("leaderboard.refresh", err)
	}
	if !ok {
		return nil, errs.Conflict("leaderboard.refresh", ErrRefreshInProgress)
	}
	defer func() {
		if err := s.cache.Del(context.WithoutCancel(ctx), lockKey); err != nil {
			s.logger.Warn("leaderboard lock release failed", zap.Error(err))
		}
	}()

	snap, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, snapshotKey, string(data), 0); err != nil {
		return nil, errs.Transient("leaderboard.refresh", err)
	}
	s.logger.Info("leaderboard refreshed", zap.Int("ranked", len(snap.Entries)))
	return snap, nil
}

// compute reads the ranking straight from storage. Learners with no XP are
// not ranked; ties break on registration time, then learner id.
func (s *Service) compute(ctx context.Context) (*Snapshot, error) {
	var rows []row
	err := s.db.WithContext(ctx).
		Table("learner_progresses AS p").
		Select(`p.learner_id AS learner_id, COALESCE(l.display_name, '') AS display_name, p.total_xp AS total_xp,
			(SELECT COUNT(*) FROM learner_badges b WHERE b.learner_id = p.learner_id) AS badge_count`).
		Joins("LEFT JOIN learners l ON l.id = p.learner_id").
		Where("p.total_xp > 0").
		Order("p.total_xp DESC").Order("p.registered_at ASC").Order("p.learner_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Transient("leaderboard.compute", err)
	}

	snap := &Snapshot{GeneratedAt: s.now().UTC(), Entries: make([]Entry, len(rows))}
	for i, r := range rows {
		lv := s.levels.Of(r.TotalXP)
		snap.Entries[i] = Entry{
			Rank:        i + 1,
			LearnerID:   r.LearnerID,
			DisplayName: r.DisplayName,
			TotalXP:     r.TotalXP,
			Level:       lv.Level,
			LevelName:   lv.Name,
			BadgeCount:  r.BadgeCount,
		}
	}
	return snap, nil
}

// Current returns the stored snapshot, building it on a cold read. If a
// refresh is already running the ranking is computed without being stored.
func (s *Service) Current(ctx context.Context) (*Snapshot, error) {
	data, err := s.cache.Get(ctx, snapshotKey)
	switch {
	case err == nil:
		var snap Snapshot
		if jerr := json.Unmarshal([]byte(data), &snap); jerr == nil {
			return &snap, nil
		}
		s.logger.Warn("leaderboard snapshot unreadable, rebuilding")
	case !cache.IsNotFound(err):
		return nil, errs.Transient("leaderboard.current", err)
	}

	snap, err := s.Refresh(ctx)
	if errors.Is(err, ErrRefreshInProgress) {
		return s.compute(ctx)
	}
	return snap, err
}

// Top returns the first n entries. n outside (0, size] means size.
func (s *Service) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || n > s.size {
		n = s.size
	}
	snap, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	if n > len(snap.Entries) {
		n = len(snap.Entries)
	}
	return snap.Entries[:n], nil
}

// Rank returns the learner's position in the snapshot, or 0 when unranked.
func (s *Service) Rank(ctx context.Context, learnerID string) (int, error) {
	snap, err := s.Current(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range snap.Entries {
		if e.LearnerID == learnerID {
			return e.Rank, nil
		}
	}
	return 0, nil
}
