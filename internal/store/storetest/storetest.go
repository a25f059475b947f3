// internal/store/storetest/storetest.go
package storetest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"librecords/internal/store"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// dsn prefers TEST_DATABASE_URL and falls back to the libpq PG* variables.
func dsn(schema string) string {
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		return url + sep + "search_path=" + schema
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable search_path=%s",
		env("PGHOST", "localhost"),
		env("PGPORT", "5432"),
		env("PGUSER", "library"),
		env("PGPASSWORD", "library"),
		env("PGDATABASE", "library_test"),
		schema,
	)
}

// Open connects to the test database and returns a store whose tables live
// in their own schema, so packages tested in parallel do not see each
// other's rows. Every table is emptied before returning. The test is
// skipped when Postgres is unreachable.
func Open(t testing.TB, schema string) *store.Store {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := store.Open(ctx, store.Options{
		Driver:       env("TEST_DB_DRIVER", "postgres"),
		DSN:          dsn(schema),
		MaxOpenConns: 10,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("skipping database tests: could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if _, err := st.DB().ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, schema)); err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := st.Truncate(ctx); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return st
}
