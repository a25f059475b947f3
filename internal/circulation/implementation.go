// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"librecords/internal/apperr"
	"librecords/internal/calendar"
	"librecords/internal/catalog"
	"librecords/internal/membership"
	"librecords/internal/store"
)

var loanColumns = []any{"id", "copy_id", "reader_id", "librarian_id", "loan_date", "due_date", "return_date", "status"}

// Constraints a loan insert can trip once the checks have passed.
const (
	constraintActiveCopy    = "ux_loans_active_copy"
	constraintLoanLibrarian = "loans_librarian_id_fkey"
)

// Policy holds the borrowing limits.
type Policy struct {
	MaxLoansPerReader int
	LoanDays          int
}

// service implements the Service interface.
type service struct {
	store   *store.Store
	policy  Policy
	logger  *zap.Logger
	clock   calendar.Clock
	tracer  trace.Tracer
	journal journal

	borrowed metric.Int64Counter
	returned metric.Int64Counter
	rejected metric.Int64Counter
}

// NewService creates a new circulation service instance.
func NewService(st *store.Store, policy Policy, logger *zap.Logger, clock calendar.Clock) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("circulation")
	tracer := otel.Tracer("librecords/circulation")
	meter := otel.Meter("librecords/circulation")

	return &service{
		store:    st,
		policy:   policy,
		logger:   logger,
		clock:    clock,
		tracer:   tracer,
		journal:  journal{tracer: tracer},
		borrowed: counter(meter, logger, "library.loans.borrowed", "Loans opened"),
		returned: counter(meter, logger, "library.loans.returned", "Loans closed by a return"),
		rejected: counter(meter, logger, "library.loans.rejected", "Borrow or return attempts refused by a business rule"),
	}
}

func counter(meter metric.Meter, logger *zap.Logger, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		logger.Warn("metric instrument unavailable", zap.String("instrument", name), zap.Error(err))
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return c
}

func (s *service) Borrow(ctx context.Context, req BorrowRequest) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.borrow",
		trace.WithAttributes(
			attribute.Int64("reader.id", req.ReaderID),
			attribute.Int64("copy.id", req.CopyID),
		),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	days := s.policy.LoanDays
	if req.LoanDays != nil {
		days = *req.LoanDays
	}

	var loan Loan
	err := s.store.WithTx(ctx, "borrow", func(ctx context.Context, tx *sqlx.Tx) error {
		st, err := s.readBorrowState(ctx, tx, req)
		if err != nil {
			return err
		}
		if err := checkBorrow(st); err != nil {
			return err
		}

		today := calendar.Today(s.clock)
		ds := store.Dialect.Insert("loans").Rows(goqu.Record{
			"copy_id":      req.CopyID,
			"reader_id":    req.ReaderID,
			"librarian_id": store.Nullable(req.LibrarianID),
			"loan_date":    today,
			"due_date":     today.AddDays(days),
			"status":       string(LoanActive),
		}).Returning(loanColumns...)
		if err := store.InsertReturning(ctx, tx, &loan, ds); err != nil {
			switch {
			case store.IsUniqueViolation(err) && store.Constraint(err) == constraintActiveCopy:
				return apperr.Rejected(ReasonCopyUnavailable)
			case store.IsForeignKeyViolation(err) && store.Constraint(err) == constraintLoanLibrarian:
				return apperr.NotFound("librarian", *req.LibrarianID)
			}
			return fmt.Errorf("insert loan: %w", err)
		}

		if err := setCopyStatus(ctx, tx, req.CopyID, catalog.CopyBorrowed); err != nil {
			return err
		}

		_, err = s.journal.append(ctx, tx, loan.ID, EventLoanOpened, loanOpenedData{
			CopyID:      loan.CopyID,
			ReaderID:    loan.ReaderID,
			LibrarianID: loan.LibrarianID,
			DueDate:     loan.DueDate,
		})
		return err
	})
	if err != nil {
		s.fail(ctx, span, "borrow", err,
			zap.Int64("reader_id", req.ReaderID),
			zap.Int64("copy_id", req.CopyID),
		)
		return nil, err
	}

	s.borrowed.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("loan.id", loan.ID))
	s.logger.Info("loan opened",
		zap.Int64("loan_id", loan.ID),
		zap.Int64("reader_id", loan.ReaderID),
		zap.Int64("copy_id", loan.CopyID),
		zap.Stringer("due_date", loan.DueDate),
	)
	return &loan, nil
}

// readBorrowState locks the reader and then the copy. Every borrow takes
// the locks in this order, so concurrent borrows of one copy or by one
// reader queue up instead of both passing the checks.
func (s *service) readBorrowState(ctx context.Context, tx *sqlx.Tx, req BorrowRequest) (borrowState, error) {
	st := borrowState{
		readerID:    req.ReaderID,
		copyID:      req.CopyID,
		maxLoans:    s.policy.MaxLoansPerReader,
		librarianID: req.LibrarianID,
	}

	var readerStatus membership.ReaderStatus
	err := tx.GetContext(ctx, &readerStatus, `SELECT status FROM readers WHERE id = $1 FOR UPDATE`, req.ReaderID)
	switch {
	case err == nil:
		st.readerStatus = &readerStatus
	case !store.IsNoRows(err):
		return st, fmt.Errorf("lock reader %d: %w", req.ReaderID, err)
	}

	var copyStatus catalog.CopyStatus
	err = tx.GetContext(ctx, &copyStatus, `SELECT status FROM copies WHERE id = $1 FOR UPDATE`, req.CopyID)
	switch {
	case err == nil:
		st.copyStatus = &copyStatus
	case !store.IsNoRows(err):
		return st, fmt.Errorf("lock copy %d: %w", req.CopyID, err)
	}

	active, err := store.Count(ctx, tx, store.Dialect.From("loans").Where(goqu.Ex{
		"reader_id": req.ReaderID,
		"status":    string(LoanActive),
	}))
	if err != nil {
		return st, fmt.Errorf("count active loans of reader %d: %w", req.ReaderID, err)
	}
	st.activeLoans = int(active)

	if req.LibrarianID != nil {
		err = tx.GetContext(ctx, &st.librarianOK,
			`SELECT EXISTS (SELECT 1 FROM librarians WHERE id = $1)`, *req.LibrarianID)
		if err != nil {
			return st, fmt.Errorf("look up librarian %d: %w", *req.LibrarianID, err)
		}
	}
	return st, nil
}

func (s *service) Return(ctx context.Context, loanID int64) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return",
		trace.WithAttributes(attribute.Int64("loan.id", loanID)),
	)
	defer span.End()

	var loan Loan
	err := s.store.WithTx(ctx, "return", func(ctx context.Context, tx *sqlx.Tx) error {
		var current Loan
		var status *LoanStatus
		err := tx.GetContext(ctx, &current,
			`SELECT id, copy_id, reader_id, librarian_id, loan_date, due_date, return_date, status
			   FROM loans WHERE id = $1 FOR UPDATE`, loanID)
		switch {
		case err == nil:
			status = &current.Status
		case !store.IsNoRows(err):
			return fmt.Errorf("lock loan %d: %w", loanID, err)
		}
		if err := checkReturn(loanID, status); err != nil {
			return err
		}

		today := calendar.Today(s.clock)
		ds := store.Dialect.Update("loans").Set(goqu.Record{
			"status":      string(LoanReturned),
			"return_date": today,
		}).Where(goqu.C("id").Eq(loanID)).Returning(loanColumns...)
		if err := store.UpdateReturning(ctx, tx, &loan, ds); err != nil {
			return fmt.Errorf("close loan %d: %w", loanID, err)
		}

		if err := setCopyStatus(ctx, tx, loan.CopyID, catalog.CopyAvailable); err != nil {
			return err
		}

		_, err = s.journal.append(ctx, tx, loan.ID, EventLoanReturned, loanReturnedData{
			CopyID:     loan.CopyID,
			ReturnDate: today,
		})
		return err
	})
	if err != nil {
		s.fail(ctx, span, "return", err, zap.Int64("loan_id", loanID))
		return nil, err
	}

	s.returned.Add(ctx, 1)
	s.logger.Info("loan returned",
		zap.Int64("loan_id", loan.ID),
		zap.Int64("copy_id", loan.CopyID),
		zap.Bool("late", loan.ReturnDate != nil && loan.DueDate.Before(*loan.ReturnDate)),
	)
	return &loan, nil
}

// fail records a failed transition. Business-rule refusals are expected
// and logged at Warn; anything else marks the span as an error.
func (s *service) fail(ctx context.Context, span trace.Span, op string, err error, fields ...zap.Field) {
	if errors.Is(err, apperr.ErrRejected) {
		reason := apperr.Message(err)
		s.rejected.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("reason", reason),
		))
		span.SetAttributes(attribute.String("rejection.reason", reason))
		s.logger.Warn(op+" rejected", append(fields, zap.String("reason", reason))...)
		return
	}
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrValidation) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
}

func setCopyStatus(ctx context.Context, tx *sqlx.Tx, copyID int64, status catalog.CopyStatus) error {
	if _, err := tx.ExecContext(ctx, `UPDATE copies SET status = $1 WHERE id = $2`, string(status), copyID); err != nil {
		return fmt.Errorf("set copy %d %s: %w", copyID, status, err)
	}
	return nil
}

func (s *service) loans() *goqu.SelectDataset {
	return store.Dialect.From("loans").Select(loanColumns...)
}

func (s *service) ListLoans(ctx context.Context, filter LoanFilter, page store.Page) ([]Loan, error) {
	ds := s.loans()
	if filter.Status != nil {
		if !filter.Status.Valid() {
			return nil, apperr.FieldErrors{"status": "must be active or returned"}
		}
		ds = ds.Where(goqu.C("status").Eq(string(*filter.Status)))
	}

	loans := []Loan{}
	if err := store.Select(ctx, s.store.DB(), &loans, page.Apply(ds.Order(goqu.C("id").Asc()))); err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}

func (s *service) GetLoan(ctx context.Context, id int64) (*Loan, error) {
	var loan Loan
	if err := store.Get(ctx, s.store.DB(), &loan, s.loans().Where(goqu.C("id").Eq(id))); err != nil {
		return nil, fmt.Errorf("get loan %d: %w", id, store.MapNoRows(err, "loan", id))
	}
	return &loan, nil
}

// ActiveLoansOf lists a reader's open loans. An unknown reader has none.
func (s *service) ActiveLoansOf(ctx context.Context, readerID int64) ([]Loan, error) {
	ds := s.loans().Where(goqu.Ex{
		"reader_id": readerID,
		"status":    string(LoanActive),
	}).Order(goqu.C("id").Asc())

	loans := []Loan{}
	if err := store.Select(ctx, s.store.DB(), &loans, ds); err != nil {
		return nil, fmt.Errorf("active loans of reader %d: %w", readerID, err)
	}
	return loans, nil
}

// OverdueLoans lists active loans whose due date is before today.
func (s *service) OverdueLoans(ctx context.Context) ([]Loan, error) {
	ds := s.loans().Where(
		goqu.C("status").Eq(string(LoanActive)),
		goqu.C("due_date").Lt(calendar.Today(s.clock)),
	).Order(goqu.C("due_date").Asc(), goqu.C("id").Asc())

	loans := []Loan{}
	if err := store.Select(ctx, s.store.DB(), &loans, ds); err != nil {
		return nil, fmt.Errorf("overdue loans: %w", err)
	}
	return loans, nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.store.DB().GetContext(ctx, &st,
		`SELECT COUNT(*) AS total_loans,
		        COUNT(*) FILTER (WHERE status = 'active') AS active_loans,
		        COUNT(*) FILTER (WHERE status = 'active' AND due_date < $1) AS overdue_loans
		   FROM loans`, calendar.Today(s.clock))
	if err != nil {
		return nil, fmt.Errorf("loan stats: %w", err)
	}
	st.ReturnedLoans = st.TotalLoans - st.ActiveLoans
	return &st, nil
}

func (s *service) History(ctx context.Context, loanID int64) ([]Event, error) {
	if _, err := s.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.journal.history(ctx, s.store.DB(), loanID)
}

// DeleteLoan removes the record. Deleting an active loan frees its copy.
func (s *service) DeleteLoan(ctx context.Context, id int64) error {
	var freed *int64
	err := s.store.WithTx(ctx, "delete_loan", func(ctx context.Context, tx *sqlx.Tx) error {
		var gone struct {
			CopyID int64      `db:"copy_id"`
			Status LoanStatus `db:"status"`
		}
		err := tx.GetContext(ctx, &gone, `DELETE FROM loans WHERE id = $1 RETURNING copy_id, status`, id)
		if err != nil {
			return fmt.Errorf("delete loan %d: %w", id, store.MapNoRows(err, "loan", id))
		}
		if gone.Status != LoanActive {
			return nil
		}
		freed = &gone.CopyID
		return setCopyStatus(ctx, tx, gone.CopyID, catalog.CopyAvailable)
	})
	if err != nil {
		return err
	}

	fields := []zap.Field{zap.Int64("loan_id", id)}
	if freed != nil {
		fields = append(fields, zap.Int64("freed_copy_id", *freed))
	}
	s.logger.Info("loan deleted", fields...)
	return nil
}
