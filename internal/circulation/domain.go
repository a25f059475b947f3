// internal/circulation/domain.go
package circulation

import (
	"fmt"
	"time"

	"librecords/internal/calendar"
	"librecords/internal/config"
	"librecords/internal/validator"
)

type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
)

func (s LoanStatus) Valid() bool {
	return validator.PermittedValue(s, LoanActive, LoanReturned)
}

// Loan links one copy to one reader for a bounded period. ReturnDate is
// set exactly when Status is returned.
type Loan struct {
	ID          int64          `json:"id" db:"id"`
	CopyID      int64          `json:"copy_id" db:"copy_id"`
	ReaderID    int64          `json:"reader_id" db:"reader_id"`
	LibrarianID *int64         `json:"librarian_id" db:"librarian_id"`
	LoanDate    calendar.Date  `json:"loan_date" db:"loan_date"`
	DueDate     calendar.Date  `json:"due_date" db:"due_date"`
	ReturnDate  *calendar.Date `json:"return_date" db:"return_date"`
	Status      LoanStatus     `json:"status" db:"status"`
}

// Overdue reports whether the loan is still out past its due date.
func (l Loan) Overdue(today calendar.Date) bool {
	return l.Status == LoanActive && l.DueDate.Before(today)
}

// BorrowRequest opens a loan. LoanDays falls back to the configured loan
// period when nil.
type BorrowRequest struct {
	CopyID      int64  `json:"copy_id"`
	ReaderID    int64  `json:"reader_id"`
	LoanDays    *int   `json:"loan_days"`
	LibrarianID *int64 `json:"librarian_id"`
}

func (r BorrowRequest) Validate() error {
	v := validator.New()
	v.Check(r.CopyID >= 1, "copy_id", "must be a positive integer")
	v.Check(r.ReaderID >= 1, "reader_id", "must be a positive integer")
	v.OptionalRange(r.LoanDays, config.MinLoanDays, config.MaxLoanDays, "loan_days")
	v.Check(r.LibrarianID == nil || *r.LibrarianID >= 1, "librarian_id", "must be a positive integer")
	return v.Err()
}

// LoanView is a loan with the names a client needs to display it. The
// name fields are null when the referenced record no longer resolves.
type LoanView struct {
	Loan
	BookTitle     *string `json:"book_title"`
	ReaderName    *string `json:"reader_name"`
	CopyInventory *string `json:"copy_inventory"`
	Overdue       bool    `json:"overdue"`
	DaysOverdue   int     `json:"days_overdue"`
}

// Stats summarizes the loan table. Returned is derived as total minus
// active.
type Stats struct {
	TotalLoans    int64 `json:"total_loans" db:"total_loans"`
	ActiveLoans   int64 `json:"active_loans" db:"active_loans"`
	OverdueLoans  int64 `json:"overdue_loans" db:"overdue_loans"`
	ReturnedLoans int64 `json:"returned_loans" db:"-"`
}

type LoanFilter struct {
	Status *LoanStatus
}

// Loan journal event types.
const (
	EventLoanOpened   = "loan_opened"
	EventLoanReturned = "loan_returned"
)

// Event is one entry of a loan's journal. Versions start at 1 and grow by
// one per transition.
type Event struct {
	ID        int64     `json:"id" db:"id"`
	LoanID    int64     `json:"loan_id" db:"loan_id"`
	Type      string    `json:"event_type" db:"event_type"`
	Data      Payload   `json:"event_data" db:"event_data"`
	Version   int       `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Payload is a JSON document stored in a JSONB column. It is emitted as is.
type Payload []byte

// Scan accepts both the []byte of lib/pq and the string of pgx stdlib.
func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		*p = append((*p)[:0], v...)
	case string:
		*p = Payload(v)
	case nil:
		*p = nil
	default:
		return fmt.Errorf("circulation: cannot scan %T into Payload", src)
	}
	return nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

type loanOpenedData struct {
	CopyID      int64         `json:"copy_id"`
	ReaderID    int64         `json:"reader_id"`
	LibrarianID *int64        `json:"librarian_id,omitempty"`
	DueDate     calendar.Date `json:"due_date"`
}

type loanReturnedData struct {
	CopyID     int64         `json:"copy_id"`
	ReturnDate calendar.Date `json:"return_date"`
}
