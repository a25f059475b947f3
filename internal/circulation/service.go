// internal/circulation/service.go
package circulation

import (
	"context"

	"librecords/internal/store"
)

// Service defines the interface for the loan lifecycle.
type Service interface {
	// Borrow opens a loan and marks the copy borrowed, atomically.
	Borrow(ctx context.Context, req BorrowRequest) (*Loan, error)
	// Return closes an active loan and makes the copy available again.
	Return(ctx context.Context, loanID int64) (*Loan, error)

	ListLoans(ctx context.Context, filter LoanFilter, page store.Page) ([]Loan, error)
	GetLoan(ctx context.Context, id int64) (*Loan, error)
	ActiveLoansOf(ctx context.Context, readerID int64) ([]Loan, error)
	OverdueLoans(ctx context.Context) ([]Loan, error)
	Stats(ctx context.Context) (*Stats, error)
	History(ctx context.Context, loanID int64) ([]Event, error)
	DeleteLoan(ctx context.Context, id int64) error
}
