package model

import "time"

// MissionType is the reset cadence of a mission.
type MissionType = string

const (
	MissionDaily       MissionType = "daily"
	MissionWeekly      MissionType = "weekly"
	MissionAchievement MissionType = "achievement"
)

// Mission is a catalog entry seeded from the catalog file.
type Mission struct {
	ID               string      `gorm:"primaryKey;size:64" json:"id"`
	Title            string      `gorm:"size:128;not null" json:"title"`
	Description      string      `gorm:"type:text" json:"description"`
	Type             MissionType `gorm:"size:16;not null;index" json:"type"`
	RequirementType  string      `gorm:"size:64;not null" json:"requirement_type"`
	RequirementCount int         `gorm:"not null" json:"requirement_count"`
	XPReward         int64       `gorm:"default:0" json:"xp_reward"`
	BadgeReward      string      `gorm:"size:64" json:"badge_reward,omitempty"`
	UpdatedAt        time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// MissionProgress is the live counter of one learner on one mission.
// CycleStart is always stored in UTC.
type MissionProgress struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	LearnerID       string     `gorm:"uniqueIndex:idx_learner_mission;size:64;not null" json:"learner_id"`
	MissionID       string     `gorm:"uniqueIndex:idx_learner_mission;size:64;not null;index:idx_mission_cycle" json:"mission_id"`
	CurrentProgress int        `gorm:"not null;default:0" json:"current_progress"`
	IsCompleted     bool       `gorm:"not null;default:false" json:"is_completed"`
	CompletedAt     *time.Time `json:"completed_at"`
	CycleStart      time.Time  `gorm:"not null;index:idx_mission_cycle" json:"cycle_start"`
	ResetAt         *time.Time `json:"reset_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// MissionCompletion is the append-only lifetime completion log. At most one
// row exists per learner, mission and cycle.
type MissionCompletion struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LearnerID   string    `gorm:"uniqueIndex:idx_completion;size:64;not null" json:"learner_id"`
	MissionID   string    `gorm:"uniqueIndex:idx_completion;size:64;not null" json:"mission_id"`
	CycleStart  time.Time `gorm:"uniqueIndex:idx_completion;not null" json:"cycle_start"`
	CompletedAt time.Time `gorm:"not null" json:"completed_at"`
	XPGrantID   *int64    `json:"xp_grant_id"`
}
