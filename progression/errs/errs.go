// Package errs defines the error taxonomy shared by the progression packages.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding whether to retry.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation: malformed input, nothing was mutated.
	KindValidation
	// KindConflict: idempotency violation or an unresolved race; retry is allowed.
	KindConflict
	// KindConfiguration: a single catalog rule is malformed.
	KindConfiguration
	// KindTransient: storage failed mid-unit; the unit was rolled back.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindConfiguration:
		return "configuration"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a classified progression error.
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := "<nil>"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Field, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrInvalidAmount  = errors.New("xp amount must be positive")
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrUnknownLearner = errors.New("learner not found")
	ErrDuplicateCause = errors.New("cause key already recorded")
)

func Validation(op, field string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Err: err}
}

func Conflict(op string, err error) error {
	return &Error{Kind: KindConflict, Op: op, Err: err}
}

func Configuration(op, field string, err error) error {
	return &Error{Kind: KindConfiguration, Op: op, Field: field, Err: err}
}

// Transient wraps a storage error. Already classified errors pass through
// unchanged so an inner Validation or Conflict is not masked.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// FieldOf returns the offending field of a classified error, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
