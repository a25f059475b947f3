// internal/store/tx.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RetryPolicy controls how often a transaction aborted by a serialization
// failure or deadlock is replayed.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	JitterFactor float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  4,
		BaseDelay:    20 * time.Millisecond,
		JitterFactor: 0.5,
	}
}

// WithRetryPolicy replaces the policy used by WithTx.
func (s *Store) WithRetryPolicy(p RetryPolicy) *Store {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	cp := *s
	cp.retry = p
	return &cp
}

// backoff returns the wait before the given attempt (attempt >= 1).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay * time.Duration(1<<(attempt-1))
	jitter := rand.Float64() * float64(delay) * p.JitterFactor
	return delay + time.Duration(jitter)
}

// WithTx runs fn inside a transaction and commits when fn returns nil.
// The whole transaction is replayed when Postgres aborts it with a
// retryable error, so fn must not have side effects outside tx.
func (s *Store) WithTx(ctx context.Context, name string, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "store.tx",
		trace.WithAttributes(attribute.String("tx.name", name)),
	)
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.retry.backoff(attempt)
			s.logger.Debug("retrying transaction",
				zap.String("tx", name),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = s.runTx(ctx, fn)
		if lastErr == nil {
			span.SetAttributes(attribute.Int("tx.attempts", attempt+1))
			return nil
		}
		if !IsRetryable(lastErr) {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "transaction failed")
	return lastErr
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
