// Package directory is the engine's local mirror of the external user
// directory. The user service keeps it in sync; the engine only reads it.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/progression/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errEmptyID = errors.New("learner id is required")

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Lookup resolves a learner. An unknown id is a Validation error.
func (s *Service) Lookup(ctx context.Context, id string) (*model.Learner, error) {
	var l model.Learner
	err := s.db.WithContext(ctx).First(&l, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.Validation("directory.lookup", "learner_id", errs.ErrUnknownLearner)
	}
	if err != nil {
		return nil, errs.Transient("directory.lookup", err)
	}
	return &l, nil
}

// Names maps learner ids to display names. Unknown ids are omitted.
func (s *Service) Names(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []model.Learner
	if err := s.db.WithContext(ctx).Select("id", "display_name").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, errs.Transient("directory.names", err)
	}
	for _, r := range rows {
		out[r.ID] = r.DisplayName
	}
	return out, nil
}

// Upsert creates or updates a learner. A zero registeredAt keeps the stored
// value, or uses now for a new learner. The registration time is copied to
// the learner's progress row so rank tie-breaks follow it.
func (s *Service) Upsert(ctx context.Context, id, displayName string, registeredAt time.Time) (*model.Learner, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errs.Validation("directory.upsert", "id", errEmptyID)
	}
	var out model.Learner
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Learner
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&existing, "id = ?", id).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if registeredAt.IsZero() {
				registeredAt = time.Now()
			}
			out = model.Learner{ID: id, DisplayName: displayName, RegisteredAt: registeredAt.UTC()}
			if err := tx.Create(&out).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			out = existing
			out.DisplayName = displayName
			if !registeredAt.IsZero() {
				out.RegisteredAt = registeredAt.UTC()
			}
			if err := tx.Save(&out).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.LearnerProgress{}).
			Where("learner_id = ?", id).
			Update("registered_at", out.RegisteredAt).Error
	})
	if err != nil {
		return nil, errs.Transient("directory.upsert", err)
	}
	s.logger.Debug("learner synced", zap.String("learner_id", id))
	return &out, nil
}
