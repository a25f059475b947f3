// internal/audit/checks.go
package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

func countCheck(db sqlx.QueryerContext, name, hypothesis, query string, args ...any) Check {
	return Check{
		Name:       name,
		Hypothesis: hypothesis,
		Threshold:  Zero,
		Query: func(ctx context.Context) (float64, error) {
			var n int64
			if err := sqlx.GetContext(ctx, db, &n, query, args...); err != nil {
				return 0, fmt.Errorf("%s: %w", name, err)
			}
			return float64(n), nil
		},
	}
}

// LibraryChecks covers the loan invariants. Each check counts offending
// rows, so every one of them must be zero.
func LibraryChecks(db sqlx.QueryerContext, maxLoansPerReader int) []Check {
	return []Check{
		countCheck(db, "borrowed_copy_without_loan",
			"A copy is borrowed only while an active loan references it",
			`SELECT COUNT(*) FROM copies c
			  WHERE c.status = 'borrowed'
			    AND NOT EXISTS (SELECT 1 FROM loans l WHERE l.copy_id = c.id AND l.status = 'active')`),
		countCheck(db, "loaned_copy_not_borrowed",
			"A copy referenced by an active loan is marked borrowed",
			`SELECT COUNT(*) FROM loans l JOIN copies c ON c.id = l.copy_id
			  WHERE l.status = 'active' AND c.status <> 'borrowed'`),
		countCheck(db, "copy_with_several_active_loans",
			"A copy has at most one active loan",
			`SELECT COUNT(*) FROM (
			    SELECT copy_id FROM loans WHERE status = 'active'
			     GROUP BY copy_id HAVING COUNT(*) > 1
			 ) AS dup`),
		countCheck(db, "reader_over_limit",
			"No reader holds more active loans than the configured maximum",
			`SELECT COUNT(*) FROM (
			    SELECT reader_id FROM loans WHERE status = 'active'
			     GROUP BY reader_id HAVING COUNT(*) > $1
			 ) AS over`, maxLoansPerReader),
		countCheck(db, "return_date_mismatch",
			"A loan has a return date exactly when it is returned",
			`SELECT COUNT(*) FROM loans
			  WHERE (status = 'active') <> (return_date IS NULL)`),
		countCheck(db, "due_before_loan",
			"A loan is never due before it was opened",
			`SELECT COUNT(*) FROM loans WHERE due_date < loan_date`),
		countCheck(db, "journal_version_gap",
			"Loan journal versions run 1..n without gaps",
			`SELECT COUNT(*) FROM (
			    SELECT loan_id FROM loan_events
			     GROUP BY loan_id HAVING MAX(version) <> COUNT(*)
			 ) AS gaps`),
	}
}
