// internal/validator/validator.go
package validator

import (
	"slices"
	"unicode/utf8"

	"librecords/internal/apperr"
)

// Validator collects field-level errors. The first message recorded for a
// field wins.
type Validator struct {
	Errors apperr.FieldErrors
}

func New() *Validator {
	return &Validator{Errors: apperr.FieldErrors{}}
}

func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

func (v *Validator) AddError(key, message string) {
	if _, exists := v.Errors[key]; !exists {
		v.Errors[key] = message
	}
}

func (v *Validator) Check(ok bool, key, message string) {
	if !ok {
		v.AddError(key, message)
	}
}

// Err returns the collected errors, or nil when there are none.
func (v *Validator) Err() error {
	if v.Valid() {
		return nil
	}
	return v.Errors
}

// Length checks that s holds between min and max characters.
func (v *Validator) Length(s string, min, max int, key string) {
	n := utf8.RuneCountInString(s)
	switch {
	case n < min && min == 1:
		v.AddError(key, "must be provided")
	case n < min:
		v.AddError(key, "is too short")
	case n > max:
		v.AddError(key, "is too long")
	}
}

// OptionalLength applies Length only when s is present.
func (v *Validator) OptionalLength(s *string, min, max int, key string) {
	if s != nil {
		v.Length(*s, min, max, key)
	}
}

func (v *Validator) Range(n, min, max int, key string) {
	v.Check(n >= min && n <= max, key, "is out of range")
}

func (v *Validator) OptionalRange(n *int, min, max int, key string) {
	if n != nil {
		v.Range(*n, min, max, key)
	}
}

// PermittedValue reports whether value is one of permitted.
func PermittedValue[T comparable](value T, permitted ...T) bool {
	return slices.Contains(permitted, value)
}
