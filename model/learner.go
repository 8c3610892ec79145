package model

import "time"

// Learner is the local mirror of the external user directory. Only the
// fields the engine needs are kept.
type Learner struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	DisplayName  string    `gorm:"size:128" json:"display_name"`
	RegisteredAt time.Time `gorm:"not null" json:"registered_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// LearnerProgress is the engine-owned aggregate for one learner.
// Level and progress are derived from TotalXP on read and never stored.
type LearnerProgress struct {
	LearnerID    string    `gorm:"primaryKey;size:64" json:"learner_id"`
	TotalXP      int64     `gorm:"not null;default:0;index:idx_progress_xp" json:"total_xp"`
	RegisteredAt time.Time `gorm:"not null" json:"registered_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ActivityCount counts accepted events per kind for a learner.
type ActivityCount struct {
	LearnerID string    `gorm:"primaryKey;size:64" json:"learner_id"`
	Kind      string    `gorm:"primaryKey;size:64" json:"kind"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
