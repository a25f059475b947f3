// internal/audit/burst.go
package audit

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"librecords/internal/apperr"
	"librecords/internal/circulation"
)

// Borrower is the part of the loan service a burst drives.
type Borrower interface {
	Borrow(ctx context.Context, req circulation.BorrowRequest) (*circulation.Loan, error)
	Return(ctx context.Context, loanID int64) (*circulation.Loan, error)
}

type BurstResult struct {
	Attempts  int     `json:"attempts"`
	Succeeded int     `json:"succeeded"`
	Rejected  int     `json:"rejected"`
	Failed    int     `json:"failed"`
	LoanIDs   []int64 `json:"loan_ids"`
}

// Consistent reports whether at most one borrow of the copy went through.
func (r BurstResult) Consistent() bool {
	return r.Succeeded <= 1 && r.Failed == 0
}

// ConcurrentBorrow has every reader try to borrow the same copy at once.
func (a *Auditor) ConcurrentBorrow(ctx context.Context, b Borrower, copyID int64, readerIDs []int64) BurstResult {
	ctx, span := a.tracer.Start(ctx, "audit.concurrent_borrow",
		trace.WithAttributes(
			attribute.Int64("copy.id", copyID),
			attribute.Int("concurrency", len(readerIDs)),
		),
	)
	defer span.End()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result = BurstResult{Attempts: len(readerIDs)}
		start  = make(chan struct{})
	)
	for _, readerID := range readerIDs {
		wg.Add(1)
		go func(readerID int64) {
			defer wg.Done()
			<-start
			loan, err := b.Borrow(ctx, circulation.BorrowRequest{CopyID: copyID, ReaderID: readerID})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Succeeded++
				result.LoanIDs = append(result.LoanIDs, loan.ID)
			case errors.Is(err, apperr.ErrRejected), errors.Is(err, apperr.ErrNotFound):
				result.Rejected++
			default:
				result.Failed++
				a.logger.Error("borrow failed during burst", zap.Int64("reader_id", readerID), zap.Error(err))
			}
		}(readerID)
	}
	close(start)
	wg.Wait()

	span.SetAttributes(
		attribute.Int("succeeded", result.Succeeded),
		attribute.Int("rejected", result.Rejected),
		attribute.Int("failed", result.Failed),
	)
	return result
}

// Rollback returns the loans a burst opened.
func (a *Auditor) Rollback(ctx context.Context, b Borrower, result BurstResult) error {
	var errs []error
	for _, id := range result.LoanIDs {
		if _, err := b.Return(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
