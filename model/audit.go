package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventStatus is the intake outcome recorded in EventLog.
type EventStatus = string

const (
	EventAccepted EventStatus = "accepted"
	EventRejected EventStatus = "rejected"
	EventConflict EventStatus = "conflict"
	EventFailed   EventStatus = "failed"
)

// EventLog records every progression event the intake saw.
type EventLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_event_trace;size:36" json:"trace_id"`
	LearnerID  string         `gorm:"index:idx_event_learner;size:64" json:"learner_id"`
	Kind       string         `gorm:"size:64" json:"kind"`
	Status     EventStatus    `gorm:"size:16;not null" json:"status"`
	Payload    datatypes.JSON `json:"payload"`
	Error      string         `gorm:"type:text" json:"error"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_event_created;autoCreateTime:milli" json:"created_at"`
}
