package model

import (
	"time"

	"gorm.io/datatypes"
)

// Badge is a catalog entry seeded from the catalog file.
type Badge struct {
	ID          string         `gorm:"primaryKey;size:64" json:"id"`
	Name        string         `gorm:"size:128;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Requirement datatypes.JSON `json:"requirement"`
	XPReward    int64          `gorm:"default:0" json:"xp_reward"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// LearnerBadge records that a learner earned a badge. Rows are never
// deleted or re-evaluated.
type LearnerBadge struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LearnerID string    `gorm:"uniqueIndex:idx_learner_badge;size:64;not null" json:"learner_id"`
	BadgeID   string    `gorm:"uniqueIndex:idx_learner_badge;size:64;not null" json:"badge_id"`
	EarnedAt  time.Time `gorm:"not null" json:"earned_at"`
}
