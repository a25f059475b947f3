// internal/store/errors.go
package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"librecords/internal/apperr"
)

// SQLSTATE codes the application reacts to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// pgError extracts the SQLSTATE code and constraint name from whichever
// driver produced err.
func pgError(err error) (code, constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, true
	}
	return "", "", false
}

func IsUniqueViolation(err error) bool {
	code, _, ok := pgError(err)
	return ok && code == codeUniqueViolation
}

func IsForeignKeyViolation(err error) bool {
	code, _, ok := pgError(err)
	return ok && code == codeForeignKeyViolation
}

// Constraint returns the violated constraint name, if any.
func Constraint(err error) string {
	_, c, _ := pgError(err)
	return c
}

// IsRetryable reports whether the transaction may succeed if replayed.
func IsRetryable(err error) bool {
	code, _, ok := pgError(err)
	return ok && (code == codeSerializationFailure || code == codeDeadlockDetected)
}

// IsNoRows reports an empty single-row result.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// MapNoRows turns sql.ErrNoRows into an apperr not-found for entity/key and
// passes other errors through.
func MapNoRows(err error, entity string, key any) error {
	if IsNoRows(err) {
		return apperr.NotFound(entity, key)
	}
	return err
}
