package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"librecords/internal/apperr"
)

func TestValidator_FirstMessageWins(t *testing.T) {
	v := New()
	v.AddError("title", "must be provided")
	v.AddError("title", "is too long")

	assert.Equal(t, "must be provided", v.Errors["title"])
	assert.False(t, v.Valid())
	assert.ErrorIs(t, v.Err(), apperr.ErrValidation)
}

func TestValidator_ValidHasNilErr(t *testing.T) {
	v := New()
	v.Check(true, "title", "never")
	assert.True(t, v.Valid())
	require.NoError(t, v.Err())
}

func TestValidator_Length(t *testing.T) {
	v := New()
	v.Length("", 1, 10, "empty")
	v.Length("abc", 5, 10, "short")
	v.Length(strings.Repeat("x", 11), 1, 10, "long")
	v.Length("ok", 1, 10, "fine")
	v.OptionalLength(nil, 1, 10, "absent")

	assert.Equal(t, apperr.FieldErrors{
		"empty": "must be provided",
		"short": "is too short",
		"long":  "is too long",
	}, v.Errors)
}

func TestValidator_LengthCountsRunes(t *testing.T) {
	v := New()
	v.Length("Мастер и Маргарита", 1, 18, "title")
	assert.True(t, v.Valid())
}

func TestPermittedValue(t *testing.T) {
	assert.True(t, PermittedValue("borrowed", "available", "borrowed"))
	assert.False(t, PermittedValue("lost", "available", "borrowed"))
}

func TestValidator_RangeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		min := rapid.IntRange(-1000, 1000).Draw(t, "min")
		max := rapid.IntRange(min, min+1000).Draw(t, "max")
		n := rapid.IntRange(min-50, max+50).Draw(t, "n")

		v := New()
		v.Range(n, min, max, "n")
		if v.Valid() != (n >= min && n <= max) {
			t.Fatalf("Range(%d, %d, %d) valid=%v", n, min, max, v.Valid())
		}
	})
}
