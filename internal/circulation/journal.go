// internal/circulation/journal.go
package circulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"librecords/internal/store"
)

var ErrJournalConflict = errors.New("loan journal: version conflict")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// journal records loan transitions in loan_events. It always writes through
// the caller's transaction so an event exists iff its transition committed.
type journal struct {
	tracer trace.Tracer
}

// append adds the next version of loanID's history and returns it.
func (j journal) append(ctx context.Context, tx *sqlx.Tx, loanID int64, eventType string, data any) (int, error) {
	ctx, span := j.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(
			attribute.Int64("loan.id", loanID),
			attribute.String("event.type", eventType),
		),
	)
	defer span.End()

	var current int
	if err := tx.GetContext(ctx, &current,
		`SELECT COALESCE(MAX(version), 0) FROM loan_events WHERE loan_id = $1`, loanID,
	); err != nil {
		return 0, fmt.Errorf("query journal version of loan %d: %w", loanID, err)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	version := current + 1
	_, err = tx.ExecContext(ctx,
		`INSERT INTO loan_events (loan_id, event_type, event_data, version) VALUES ($1, $2, $3, $4)`,
		loanID, eventType, string(payload), version,
	)
	if err != nil {
		if store.IsUniqueViolation(err) {
			span.SetAttributes(attribute.Bool("conflict.detected", true))
			return 0, ErrJournalConflict
		}
		return 0, fmt.Errorf("insert %s event of loan %d: %w", eventType, loanID, err)
	}

	span.SetAttributes(attribute.Int("event.version", version))
	return version, nil
}

// history returns loanID's events oldest first.
func (j journal) history(ctx context.Context, q sqlx.QueryerContext, loanID int64) ([]Event, error) {
	ctx, span := j.tracer.Start(ctx, "journal.history",
		trace.WithAttributes(attribute.Int64("loan.id", loanID)),
	)
	defer span.End()

	events := []Event{}
	err := sqlx.SelectContext(ctx, q, &events,
		`SELECT id, loan_id, event_type, event_data, version, created_at
		   FROM loan_events
		  WHERE loan_id = $1
		  ORDER BY version`, loanID)
	if err != nil {
		return nil, fmt.Errorf("load journal of loan %d: %w", loanID, err)
	}
	span.SetAttributes(attribute.Int("event.count", len(events)))
	return events, nil
}
