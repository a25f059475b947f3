// internal/circulation/rules.go
package circulation

import (
	"librecords/internal/apperr"
	"librecords/internal/catalog"
	"librecords/internal/membership"
)

// Rejection reasons returned to clients.
const (
	ReasonReaderBlocked   = "reader blocked"
	ReasonCopyUnavailable = "copy unavailable"
	ReasonLimitExceeded   = "limit exceeded"
	ReasonAlreadyClosed   = "already closed"
)

// borrowState is everything the borrow rules look at, read under row locks
// inside the borrow transaction. Nil pointers mean the row does not exist.
type borrowState struct {
	readerID     int64
	readerStatus *membership.ReaderStatus
	copyID       int64
	copyStatus   *catalog.CopyStatus
	activeLoans  int
	maxLoans     int
	librarianID  *int64
	librarianOK  bool
}

// checkBorrow applies the borrow preconditions in order; the first one that
// fails decides the error.
func checkBorrow(st borrowState) error {
	switch {
	case st.readerStatus == nil:
		return apperr.NotFound("reader", st.readerID)
	case *st.readerStatus == membership.ReaderBlocked:
		return apperr.Rejected(ReasonReaderBlocked)
	case st.copyStatus == nil:
		return apperr.NotFound("copy", st.copyID)
	case *st.copyStatus != catalog.CopyAvailable:
		return apperr.Rejected(ReasonCopyUnavailable)
	case st.activeLoans >= st.maxLoans:
		return apperr.Rejected(ReasonLimitExceeded)
	case st.librarianID != nil && !st.librarianOK:
		return apperr.NotFound("librarian", *st.librarianID)
	}
	return nil
}

// checkReturn allows closing only an existing active loan.
func checkReturn(loanID int64, status *LoanStatus) error {
	switch {
	case status == nil:
		return apperr.NotFound("loan", loanID)
	case *status != LoanActive:
		return apperr.Rejected(ReasonAlreadyClosed)
	}
	return nil
}
