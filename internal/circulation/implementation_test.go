package circulation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"librecords/internal/apperr"
	"librecords/internal/calendar"
	"librecords/internal/catalog"
	"librecords/internal/membership"
	"librecords/internal/store"
	"librecords/internal/store/storetest"
)

func ptr[T any](v T) *T { return &v }

func calendarDay(n int) calendar.Date { return calendar.New(2020, 1, 1).AddDays(n) }

var testToday = calendar.New(2024, 3, 1)

type fixture struct {
	svc     Service
	catalog catalog.Service
	members membership.Service
	store   *store.Store
}

func setup(t *testing.T) *fixture {
	t.Helper()
	st := storetest.Open(t, "circulation_test")
	logger := zaptest.NewLogger(t)
	clock := func() time.Time { return time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC) }
	return &fixture{
		svc:     NewService(st, Policy{MaxLoansPerReader: 5, LoanDays: 14}, logger, clock),
		catalog: catalog.NewService(st, logger, clock),
		members: membership.NewService(st, logger, clock),
		store:   st,
	}
}

func (f *fixture) copy(t *testing.T, inventory string) *catalog.Copy {
	t.Helper()
	ctx := context.Background()
	b, err := f.catalog.CreateBook(ctx, catalog.NewBook{Title: "Book " + inventory, Author: "Author"})
	require.NoError(t, err)
	c, err := f.catalog.CreateCopy(ctx, catalog.NewCopy{BookID: b.ID, InventoryNumber: inventory})
	require.NoError(t, err)
	return c
}

func (f *fixture) reader(t *testing.T, card string) *membership.Reader {
	t.Helper()
	r, err := f.members.CreateReader(context.Background(), membership.NewReader{FullName: "Reader " + card, LibraryCard: card})
	require.NoError(t, err)
	return r
}

func (f *fixture) copyStatus(t *testing.T, id int64) catalog.CopyStatus {
	t.Helper()
	c, err := f.catalog.GetCopy(context.Background(), id)
	require.NoError(t, err)
	return c.Status
}

func Test_Borrow_OpensLoanAndMarksCopy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.copy(t, "INV-1")
	r := f.reader(t, "RC-1")

	loan, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: r.ID})
	require.NoError(t, err)

	assert.Equal(t, LoanActive, loan.Status)
	assert.Equal(t, testToday, loan.LoanDate)
	assert.Equal(t, testToday.AddDays(14), loan.DueDate)
	assert.Nil(t, loan.ReturnDate)
	assert.Nil(t, loan.LibrarianID)
	assert.Equal(t, catalog.CopyBorrowed, f.copyStatus(t, c.ID))

	custom, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: f.copy(t, "INV-2").ID, ReaderID: r.ID, LoanDays: ptr(30)})
	require.NoError(t, err)
	assert.Equal(t, testToday.AddDays(30), custom.DueDate)
}

func Test_Return_ClosesLoanAndFreesCopy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.copy(t, "INV-1")
	r := f.reader(t, "RC-1")

	loan, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: r.ID})
	require.NoError(t, err)

	returned, err := f.svc.Return(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, LoanReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, testToday, *returned.ReturnDate)
	assert.Equal(t, catalog.CopyAvailable, f.copyStatus(t, c.ID))

	// a second return is refused and changes nothing
	_, err = f.svc.Return(ctx, loan.ID)
	require.ErrorIs(t, err, apperr.ErrRejected)
	assert.Equal(t, ReasonAlreadyClosed, apperr.Message(err))

	again, err := f.svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, returned, again)
	assert.Equal(t, catalog.CopyAvailable, f.copyStatus(t, c.ID))

	_, err = f.svc.Return(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func Test_Borrow_RoundTripRestoresAvailability(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.copy(t, "INV-1")
	r := f.reader(t, "RC-1")

	for i := 0; i < 3; i++ {
		loan, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: r.ID})
		require.NoError(t, err)
		_, err = f.svc.Return(ctx, loan.ID)
		require.NoError(t, err)
	}

	assert.Equal(t, catalog.CopyAvailable, f.copyStatus(t, c.ID))
	active, err := f.svc.ActiveLoansOf(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalLoans: 3, ReturnedLoans: 3}, *stats)
}

func Test_Borrow_LimitExceeded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.reader(t, "RC-1")

	for i := 1; i <= 5; i++ {
		_, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: f.copy(t, fmt.Sprintf("INV-%d", i)).ID, ReaderID: r.ID})
		require.NoError(t, err)
	}

	sixth := f.copy(t, "INV-6")
	_, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: sixth.ID, ReaderID: r.ID})
	require.ErrorIs(t, err, apperr.ErrRejected)
	assert.Equal(t, ReasonLimitExceeded, apperr.Message(err))
	assert.Equal(t, catalog.CopyAvailable, f.copyStatus(t, sixth.ID))

	active, err := f.svc.ActiveLoansOf(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, active, 5)
}

func Test_Borrow_Rejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.copy(t, "INV-1")
	r := f.reader(t, "RC-1")

	t.Run("blocked reader", func(t *testing.T) {
		blocked := f.reader(t, "RC-2")
		_, err := f.members.SetReaderStatus(ctx, blocked.ID, membership.ReaderBlocked)
		require.NoError(t, err)

		_, err = f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: blocked.ID})
		require.ErrorIs(t, err, apperr.ErrRejected)
		assert.Equal(t, ReasonReaderBlocked, apperr.Message(err))
		assert.Equal(t, catalog.CopyAvailable, f.copyStatus(t, c.ID))
	})

	t.Run("missing reader and copy", func(t *testing.T) {
		_, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: 999})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = f.svc.Borrow(ctx, BorrowRequest{CopyID: 999, ReaderID: r.ID})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("copy under repair", func(t *testing.T) {
		repair := f.copy(t, "INV-R")
		_, err := f.catalog.SetCopyStatus(ctx, repair.ID, catalog.CopyUnderRepair)
		require.NoError(t, err)

		_, err = f.svc.Borrow(ctx, BorrowRequest{CopyID: repair.ID, ReaderID: r.ID})
		require.ErrorIs(t, err, apperr.ErrRejected)
		assert.Equal(t, ReasonCopyUnavailable, apperr.Message(err))
	})

	t.Run("copy already borrowed", func(t *testing.T) {
		_, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: r.ID})
		require.NoError(t, err)

		other := f.reader(t, "RC-3")
		_, err = f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: other.ID})
		require.ErrorIs(t, err, apperr.ErrRejected)
		assert.Equal(t, ReasonCopyUnavailable, apperr.Message(err))
	})

	t.Run("unknown librarian", func(t *testing.T) {
		_, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: f.copy(t, "INV-L").ID, ReaderID: r.ID, LibrarianID: ptr(int64(999))})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("invalid request", func(t *testing.T) {
		_, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: r.ID, LoanDays: ptr(0)})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func Test_Borrow_ConcurrentOnSameCopy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.copy(t, "INV-1")
	readers := []*membership.Reader{f.reader(t, "RC-1"), f.reader(t, "RC-2")}

	var wg sync.WaitGroup
	errs := make([]error, len(readers))
	for i, r := range readers {
		wg.Add(1)
		go func(i int, readerID int64) {
			defer wg.Done()
			_, errs[i] = f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: readerID})
		}(i, r.ID)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Message(err) == ReasonCopyUnavailable:
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)

	active, err := f.svc.ListLoans(ctx, LoanFilter{Status: ptr(LoanActive)}, store.Page{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func Test_OverdueAndStats(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.reader(t, "RC-1")

	late, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: f.copy(t, "INV-1").ID, ReaderID: r.ID})
	require.NoError(t, err)
	_, err = f.svc.Borrow(ctx, BorrowRequest{CopyID: f.copy(t, "INV-2").ID, ReaderID: r.ID})
	require.NoError(t, err)
	closed, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: f.copy(t, "INV-3").ID, ReaderID: r.ID})
	require.NoError(t, err)
	_, err = f.svc.Return(ctx, closed.ID)
	require.NoError(t, err)

	f.store.DB().MustExecContext(ctx, `UPDATE loans SET due_date = $1 WHERE id = $2`, testToday.AddDays(-1), late.ID)
	// returned loans never count as overdue
	f.store.DB().MustExecContext(ctx, `UPDATE loans SET due_date = $1 WHERE id = $2`, testToday.AddDays(-20), closed.ID)

	overdue, err := f.svc.OverdueLoans(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalLoans: 3, ActiveLoans: 2, OverdueLoans: 1, ReturnedLoans: 1}, *stats)

	returned, err := f.svc.ListLoans(ctx, LoanFilter{Status: ptr(LoanReturned)}, store.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, returned, 1)
	assert.Equal(t, closed.ID, returned[0].ID)

	_, err = f.svc.ListLoans(ctx, LoanFilter{Status: ptr(LoanStatus("lost"))}, store.Page{Limit: 10})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func Test_Deletes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("copy delete removes its loans", func(t *testing.T) {
		c := f.copy(t, "INV-1")
		loan, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: f.reader(t, "RC-1").ID})
		require.NoError(t, err)

		require.NoError(t, f.catalog.DeleteCopy(ctx, c.ID))
		_, err = f.svc.GetLoan(ctx, loan.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("reader delete removes their loans", func(t *testing.T) {
		r := f.reader(t, "RC-2")
		held := f.copy(t, "INV-2")
		loan, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: held.ID, ReaderID: r.ID})
		require.NoError(t, err)
		repaired := f.copy(t, "INV-2B")
		returned, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: repaired.ID, ReaderID: r.ID})
		require.NoError(t, err)
		_, err = f.svc.Return(ctx, returned.ID)
		require.NoError(t, err)
		_, err = f.catalog.SetCopyStatus(ctx, repaired.ID, catalog.CopyUnderRepair)
		require.NoError(t, err)

		require.NoError(t, f.members.DeleteReader(ctx, r.ID))
		_, err = f.svc.GetLoan(ctx, loan.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.Equal(t, catalog.CopyAvailable, f.copyStatus(t, held.ID))
		assert.Equal(t, catalog.CopyUnderRepair, f.copyStatus(t, repaired.ID))

		other, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: held.ID, ReaderID: f.reader(t, "RC-2B").ID})
		require.NoError(t, err)
		assert.Equal(t, LoanActive, other.Status)

		assert.ErrorIs(t, f.members.DeleteReader(ctx, r.ID), apperr.ErrNotFound)
	})

	t.Run("librarian delete keeps the loan", func(t *testing.T) {
		l, err := f.members.CreateLibrarian(ctx, membership.NewLibrarian{FullName: "Lee", Login: "lee", Password: "s3cret-pass"})
		require.NoError(t, err)
		loan, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: f.copy(t, "INV-3").ID, ReaderID: f.reader(t, "RC-3").ID, LibrarianID: &l.ID})
		require.NoError(t, err)
		require.NotNil(t, loan.LibrarianID)

		require.NoError(t, f.members.DeleteLibrarian(ctx, l.ID))
		kept, err := f.svc.GetLoan(ctx, loan.ID)
		require.NoError(t, err)
		assert.Nil(t, kept.LibrarianID)
	})

	t.Run("deleting an active loan frees the copy", func(t *testing.T) {
		c := f.copy(t, "INV-4")
		loan, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: f.reader(t, "RC-4").ID})
		require.NoError(t, err)

		require.NoError(t, f.svc.DeleteLoan(ctx, loan.ID))
		assert.Equal(t, catalog.CopyAvailable, f.copyStatus(t, c.ID))
		assert.ErrorIs(t, f.svc.DeleteLoan(ctx, loan.ID), apperr.ErrNotFound)
	})
}

func Test_History(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	loan, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: f.copy(t, "INV-1").ID, ReaderID: f.reader(t, "RC-1").ID})
	require.NoError(t, err)
	_, err = f.svc.Return(ctx, loan.ID)
	require.NoError(t, err)

	events, err := f.svc.History(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventLoanOpened, events[0].Type)
	assert.Equal(t, 1, events[0].Version)
	assert.Equal(t, EventLoanReturned, events[1].Type)
	assert.Equal(t, 2, events[1].Version)
	assert.JSONEq(t, `{"copy_id":1,"return_date":"2024-03-01"}`, string(events[1].Data))

	_, err = f.svc.History(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func Test_Projector_ResolvesNames(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.copy(t, "INV-1")
	r := f.reader(t, "RC-1")

	loan, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: r.ID})
	require.NoError(t, err)

	view, err := NewProjector(f.catalog, f.members, nil).View(ctx, *loan)
	require.NoError(t, err)
	require.NotNil(t, view.BookTitle)
	assert.Equal(t, "Book INV-1", *view.BookTitle)
	require.NotNil(t, view.ReaderName)
	assert.Equal(t, "Reader RC-1", *view.ReaderName)
	require.NotNil(t, view.CopyInventory)
	assert.Equal(t, "INV-1", *view.CopyInventory)
}

func Test_Projector_FlagsOverdueLoans(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	loan, err := f.svc.Borrow(ctx, BorrowRequest{CopyID: f.copy(t, "INV-1").ID, ReaderID: f.reader(t, "RC-1").ID, LoanDays: ptr(7)})
	require.NoError(t, err)

	at := func(d calendar.Date) calendar.Clock {
		return func() time.Time { return d.Time() }
	}

	onDue, err := NewProjector(f.catalog, f.members, at(testToday.AddDays(7))).View(ctx, *loan)
	require.NoError(t, err)
	assert.False(t, onDue.Overdue)
	assert.Zero(t, onDue.DaysOverdue)

	late, err := NewProjector(f.catalog, f.members, at(testToday.AddDays(10))).View(ctx, *loan)
	require.NoError(t, err)
	assert.True(t, late.Overdue)
	assert.Equal(t, 3, late.DaysOverdue)

	closed, err := f.svc.Return(ctx, loan.ID)
	require.NoError(t, err)
	afterReturn, err := NewProjector(f.catalog, f.members, at(testToday.AddDays(10))).View(ctx, *closed)
	require.NoError(t, err)
	assert.False(t, afterReturn.Overdue)
}

func Test_Borrow_InsertRaceMapsToUnavailable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.copy(t, "INV-1")
	r := f.reader(t, "RC-1")

	// an active loan the copy status does not reflect, as left by a
	// borrow that committed between the checks and the insert
	_, err := f.store.DB().ExecContext(ctx,
		`INSERT INTO loans (copy_id, reader_id, due_date) VALUES ($1, $2, CURRENT_DATE + 14)`, c.ID, r.ID)
	require.NoError(t, err)
	require.Equal(t, catalog.CopyAvailable, f.copyStatus(t, c.ID))

	_, err = f.svc.Borrow(ctx, BorrowRequest{CopyID: c.ID, ReaderID: f.reader(t, "RC-2").ID})
	require.ErrorIs(t, err, apperr.ErrRejected)
	assert.Equal(t, ReasonCopyUnavailable, apperr.Message(err))
}
