// internal/store/schema.go
package store

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Tables lists the application tables in dependency order, children last.
var Tables = []string{"books", "copies", "readers", "librarians", "loans", "loan_events"}

// EnsureSchema creates any missing tables and indexes. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "store.ensure_schema")
	defer span.End()

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		span.RecordError(err)
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Truncate empties every application table and resets identities.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE TABLE loan_events, loans, copies, books, readers, librarians RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}
