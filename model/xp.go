package model

import "time"

// XPReason enumerates why XP was granted.
type XPReason = string

const (
	ReasonMaterialCompleted   XPReason = "material_completed"
	ReasonAssignmentSubmitted XPReason = "assignment_submitted"
	ReasonAssignmentGraded    XPReason = "assignment_graded"
	ReasonPerfectScore        XPReason = "perfect_score"
	ReasonForumPost           XPReason = "forum_post"
	ReasonForumReply          XPReason = "forum_reply"
	ReasonCourseCompleted     XPReason = "course_completed"
	ReasonQuizCompleted       XPReason = "quiz_completed"
	ReasonMissionCompleted    XPReason = "mission_completed"
	ReasonBadgeEarned         XPReason = "badge_earned"
	ReasonAdminCorrection     XPReason = "admin_correction"
)

// XPGrant is one immutable ledger row. Amount is positive except for
// ReasonAdminCorrection.
type XPGrant struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LearnerID string    `gorm:"index:idx_grant_learner;size:64;not null" json:"learner_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Reason    XPReason  `gorm:"size:32;not null" json:"reason"`
	Reference string    `gorm:"size:128" json:"reference,omitempty"`
	CauseKey  *string   `gorm:"uniqueIndex;size:191" json:"cause_key,omitempty"`
	CreatedAt time.Time `gorm:"index:idx_grant_learner;autoCreateTime:milli" json:"created_at"`
}
