// Package intake validates and normalizes progression events before they
// reach the ledger.
package intake

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/kasuganosora/progression/config"
	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/progression/errs"
)

const (
	requiredForKindTag = "required_for_kind"
	scoreRangeTag      = "score_range"
	correctRangeTag    = "correct_range"
)

// Event is an incoming progression event. Magnitude is the number of
// correct answers for quiz.completed; other kinds may omit it.
type Event struct {
	LearnerID      string                 `json:"learner_id" validate:"required,max=64"`
	Kind           string                 `json:"kind" validate:"required,max=64"`
	Magnitude      *int64                 `json:"magnitude,omitempty" validate:"omitempty,gt=0,lte=100000"`
	Score          *float64               `json:"score,omitempty" validate:"omitempty,gte=0"`
	MaxScore       *float64               `json:"max_score,omitempty" validate:"omitempty,gt=0"`
	QuestionsTotal *int64                 `json:"questions_total,omitempty" validate:"omitempty,gt=0,lte=100000"`
	Reference      string                 `json:"reference,omitempty" validate:"max=128"`
	CauseKey       string                 `json:"cause_key,omitempty" validate:"max=160"`
	Context        map[string]interface{} `json:"context,omitempty"`
}

// Normalized is an accepted event, ready for the ledger and mission tracker.
type Normalized struct {
	LearnerID    string
	Kind         string
	Reason       model.XPReason
	XP           int64
	Step         int
	Reference    string
	CauseKey     string
	RegisteredAt time.Time
	// Percent is set for quiz.completed when questions_total is known.
	Percent *int
}

// Directory resolves learners against the user directory.
type Directory interface {
	Lookup(ctx context.Context, id string) (*model.Learner, error)
}

type Service struct {
	dir        Directory
	xp         config.XPConfig
	validate   *validator.Validate
	translator ut.Translator
}

func NewService(dir Directory, xp config.XPConfig) *Service {
	v := validator.New()
	enLocale := en.New()
	trans, found := ut.New(enLocale, enLocale).GetTranslator("en")
	if !found {
		panic("intake: en translator not registered")
	}
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		panic(fmt.Sprintf("intake: register translations: %v", err))
	}

	// report json names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(eventStructValidation, Event{})

	return &Service{dir: dir, xp: xp, validate: v, translator: trans}
}

// eventStructValidation does the kind-dependent cross-field checks.
func eventStructValidation(sl validator.StructLevel) {
	ev, ok := sl.Current().Interface().(Event)
	if !ok {
		return
	}
	switch ev.Kind {
	case KindAssignmentGraded:
		if ev.Score == nil {
			sl.ReportError(ev.Score, "score", "Score", requiredForKindTag, ev.Kind)
		}
		if ev.MaxScore == nil {
			sl.ReportError(ev.MaxScore, "max_score", "MaxScore", requiredForKindTag, ev.Kind)
		}
		if ev.Score != nil && ev.MaxScore != nil && *ev.Score > *ev.MaxScore {
			sl.ReportError(ev.Score, "score", "Score", scoreRangeTag, "")
		}
	case KindQuizCompleted:
		if ev.Magnitude == nil {
			sl.ReportError(ev.Magnitude, "magnitude", "Magnitude", requiredForKindTag, ev.Kind)
		}
		if ev.Magnitude != nil && ev.QuestionsTotal != nil && *ev.Magnitude > *ev.QuestionsTotal {
			sl.ReportError(ev.Magnitude, "magnitude", "Magnitude", correctRangeTag, "")
		}
	}
}

// Submit validates ev and returns the normalized events it yields, the
// submitted one first. Nothing is written.
func (s *Service) Submit(ctx context.Context, ev Event) ([]Normalized, error) {
	ev.LearnerID = strings.TrimSpace(ev.LearnerID)
	ev.Kind = strings.TrimSpace(ev.Kind)

	if err := s.validate.Struct(ev); err != nil {
		return nil, s.toValidation(err)
	}
	if !Accepts(ev.Kind) {
		return nil, errs.Validation("intake.submit", "kind", fmt.Errorf("%w: %q", errs.ErrUnknownKind, ev.Kind))
	}
	learner, err := s.dir.Lookup(ctx, ev.LearnerID)
	if err != nil {
		return nil, err
	}

	base := Normalized{
		LearnerID:    ev.LearnerID,
		Kind:         ev.Kind,
		Reason:       reasons[ev.Kind],
		Step:         1,
		Reference:    ev.Reference,
		CauseKey:     ev.CauseKey,
		RegisteredAt: learner.RegisteredAt,
	}
	if ev.Magnitude != nil {
		base.Step = int(*ev.Magnitude)
	}

	switch ev.Kind {
	case KindMaterialCompleted:
		base.XP = s.xp.MaterialCompleted
	case KindAssignmentSubmitted:
		base.XP = s.xp.AssignmentSubmitted
	case KindAssignmentGraded:
		base.XP = s.xp.AssignmentGraded
	case KindForumPost:
		base.XP = s.xp.ForumPost
	case KindForumReply:
		base.XP = s.xp.ForumReply
	case KindCourseCompleted:
		base.XP = s.xp.CourseCompleted
	case KindQuizCompleted:
		base.XP = *ev.Magnitude * s.xp.QuizPointsPerCorrect
		if ev.QuestionsTotal != nil {
			pct := QuizPercent(*ev.Magnitude, *ev.QuestionsTotal)
			base.Percent = &pct
		}
	}

	out := []Normalized{base}
	if ev.Kind == KindAssignmentGraded && *ev.Score == *ev.MaxScore {
		perfect := base
		perfect.Kind = KindPerfectScore
		perfect.Reason = reasons[KindPerfectScore]
		perfect.XP = s.xp.PerfectScore
		perfect.Step = 1
		if base.CauseKey != "" {
			perfect.CauseKey = base.CauseKey + ":perfect"
		}
		out = append(out, perfect)
	}
	return out, nil
}

// QuizPercent is floor(100*correct/total).
func QuizPercent(correct, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(100 * correct / total)
}

// toValidation reports the first failing field.
func (s *Service) toValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errs.Validation("intake.submit", "", err)
	}
	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case requiredForKindTag:
		msg = fmt.Sprintf("%s is required for %s", fe.Field(), fe.Param())
	case scoreRangeTag:
		msg = "score must not exceed max_score"
	case correctRangeTag:
		msg = "magnitude must not exceed questions_total"
	default:
		msg = fe.Translate(s.translator)
	}
	if fe.Field() == "magnitude" && fe.Tag() == "gt" {
		return errs.Validation("intake.submit", fe.Field(), fmt.Errorf("%w: %s", errs.ErrInvalidAmount, msg))
	}
	return errs.Validation("intake.submit", fe.Field(), errors.New(msg))
}
