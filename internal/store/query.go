// internal/store/query.go
package store

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"
)

// Dialect builds Postgres statements with $n placeholders.
var Dialect = goqu.Dialect("postgres")

// Page is an offset window over an ordered result.
type Page struct {
	Skip  uint
	Limit uint
}

func (p Page) Apply(ds *goqu.SelectDataset) *goqu.SelectDataset {
	return ds.Offset(p.Skip).Limit(p.Limit)
}

// Select runs ds and scans every row into dest, a pointer to a slice.
func Select(ctx context.Context, q sqlx.QueryerContext, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

// Get runs ds and scans the single row into dest. A missing row yields
// sql.ErrNoRows.
func Get(ctx context.Context, q sqlx.QueryerContext, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

// Count returns the number of rows matched by ds.
func Count(ctx context.Context, q sqlx.QueryerContext, ds *goqu.SelectDataset) (int64, error) {
	var n int64
	query, args, err := ds.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	if err := sqlx.GetContext(ctx, q, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// InsertReturning runs an INSERT ... RETURNING and scans the row into dest.
func InsertReturning(ctx context.Context, q sqlx.QueryerContext, dest any, ds *goqu.InsertDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

// UpdateReturning runs an UPDATE ... RETURNING. No matching row yields
// sql.ErrNoRows.
func UpdateReturning(ctx context.Context, q sqlx.QueryerContext, dest any, ds *goqu.UpdateDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

// Update runs ds and reports how many rows it changed.
func Update(ctx context.Context, e sqlx.ExecerContext, ds *goqu.UpdateDataset) (int64, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete runs ds and reports how many rows went away.
func Delete(ctx context.Context, e sqlx.ExecerContext, ds *goqu.DeleteDataset) (int64, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Nullable unwraps p for use as a column value; nil becomes NULL.
func Nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// Assign sets column in rec when p is non-nil. It is how partial updates
// skip absent fields.
func Assign[T any](rec goqu.Record, column string, p *T) {
	if p != nil {
		rec[column] = *p
	}
}
