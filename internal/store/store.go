// internal/store/store.go
package store

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 5 * time.Minute
	pingTimeout            = 5 * time.Second
)

// Options configures the connection pool.
type Options struct {
	Driver       string // "postgres" (lib/pq) or "pgx" (pgx stdlib)
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Store owns the connection pool shared by every service. Nothing else in
// the process holds database state between requests.
type Store struct {
	db     *sqlx.DB
	tracer trace.Tracer
	logger *zap.Logger
	retry  RetryPolicy
}

// Open creates the pool and verifies the database is reachable.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sqlx.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxLifetime(defaultMaxConnLifetime)
	db.SetConnMaxIdleTime(defaultMaxConnIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(db, logger), nil
}

// New wraps an existing pool.
func New(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		tracer: otel.Tracer("librecords/store"),
		logger: logger,
		retry:  DefaultRetryPolicy(),
	}
}

// DB exposes the pool for read paths that need no transaction.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
