// internal/apperr/apperr.go
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrRejected   = errors.New("rejected")
	ErrValidation = errors.New("validation failed")
)

// Error is a classified failure. Msg is safe to show to API clients; Kind
// is one of the sentinels above.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// NotFound reports that the named entity does not exist.
func NotFound(entity string, key any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf("%s %v not found", entity, key)}
}

// Conflict reports a uniqueness violation on field.
func Conflict(entity, field string, value any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf("%s with %s %v already exists", entity, field, value)}
}

// Rejected reports a failed business-rule precondition.
func Rejected(reason string) error {
	return &Error{Kind: ErrRejected, Msg: reason}
}

// FieldErrors carries per-field validation messages.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	return fmt.Sprintf("%d invalid field(s)", len(f))
}

func (f FieldErrors) Is(target error) bool { return target == ErrValidation }

// Message returns the part of err that is meant for API clients.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}
