package intake

import "github.com/kasuganosora/progression/model"

// Event kinds accepted from collaborators.
const (
	KindMaterialCompleted   = "material.completed"
	KindAssignmentSubmitted = "assignment.submitted"
	KindAssignmentGraded    = "assignment.graded"
	KindForumPost           = "forum.post_created"
	KindForumReply          = "forum.reply_created"
	KindCourseCompleted     = "course.completed"
	KindQuizCompleted       = "quiz.completed"

	// KindPerfectScore is derived from a full-marks assignment.graded and is
	// never accepted directly.
	KindPerfectScore = "assignment.perfect_score"
)

var reasons = map[string]model.XPReason{
	KindMaterialCompleted:   model.ReasonMaterialCompleted,
	KindAssignmentSubmitted: model.ReasonAssignmentSubmitted,
	KindAssignmentGraded:    model.ReasonAssignmentGraded,
	KindForumPost:           model.ReasonForumPost,
	KindForumReply:          model.ReasonForumReply,
	KindCourseCompleted:     model.ReasonCourseCompleted,
	KindQuizCompleted:       model.ReasonQuizCompleted,
	KindPerfectScore:        model.ReasonPerfectScore,
}

// Accepts reports whether kind may be submitted by a collaborator.
func Accepts(kind string) bool {
	_, ok := reasons[kind]
	return ok && kind != KindPerfectScore
}

// Kinds lists every kind a mission or badge rule may track, derived ones
// included.
func Kinds() []string {
	return []string{
		KindMaterialCompleted, KindAssignmentSubmitted, KindAssignmentGraded,
		KindForumPost, KindForumReply, KindCourseCompleted, KindQuizCompleted,
		KindPerfectScore,
	}
}
