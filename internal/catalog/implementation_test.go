package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"librecords/internal/apperr"
	"librecords/internal/calendar"
	"librecords/internal/store"
	"librecords/internal/store/storetest"
)

func ptr[T any](v T) *T { return &v }

func setupService(t *testing.T) (Service, *store.Store) {
	t.Helper()
	st := storetest.Open(t, "catalog_test")
	clock := func() time.Time { return time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC) }
	return NewService(st, zaptest.NewLogger(t), clock), st
}

func Test_BookLifecycle(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	// arrange
	created, err := svc.CreateBook(ctx, NewBook{Title: "T", Author: "A", Year: ptr(2000)})
	require.NoError(t, err)
	assert.Equal(t, "T", created.Title)
	assert.Nil(t, created.UpdatedAt)

	// act
	updated, err := svc.UpdateBook(ctx, created.ID, BookPatch{Title: ptr("T2")})
	require.NoError(t, err)

	// assert
	assert.Equal(t, "T2", updated.Title)
	assert.Equal(t, "A", updated.Author)
	require.NotNil(t, updated.Year)
	assert.Equal(t, 2000, *updated.Year)
	assert.NotNil(t, updated.UpdatedAt)

	require.NoError(t, svc.DeleteBook(ctx, created.ID))
	_, err = svc.GetBook(ctx, created.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteBook(ctx, created.ID), apperr.ErrNotFound)
}

func Test_UpdateBook_EmptyPatchChangesNothing(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	b, err := svc.CreateBook(ctx, NewBook{Title: "T", Author: "A"})
	require.NoError(t, err)

	same, err := svc.UpdateBook(ctx, b.ID, BookPatch{})
	require.NoError(t, err)
	assert.Equal(t, b.Title, same.Title)
	assert.Nil(t, same.UpdatedAt)

	_, err = svc.UpdateBook(ctx, 999, BookPatch{Title: ptr("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func Test_CreateBook_DuplicateISBNIsConflict(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.CreateBook(ctx, NewBook{Title: "A", Author: "X", ISBN: ptr("978-0")})
	require.NoError(t, err)

	_, err = svc.CreateBook(ctx, NewBook{Title: "B", Author: "Y", ISBN: ptr("978-0")})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func Test_SearchBooks(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	for _, in := range []NewBook{
		{Title: "Dune", Author: "Frank Herbert"},
		{Title: "The Hobbit", Author: "J.R.R. Tolkien"},
		{Title: "100% Pure", Author: "Nobody"},
	} {
		_, err := svc.CreateBook(ctx, in)
		require.NoError(t, err)
	}

	got, err := svc.SearchBooks(ctx, "HERB")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Dune", got[0].Title)

	got, err = svc.SearchBooks(ctx, "tolk")
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = svc.SearchBooks(ctx, "%")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "100% Pure", got[0].Title)

	got, err = svc.SearchBooks(ctx, "asimov")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func Test_ListBooks_Pages(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		_, err := svc.CreateBook(ctx, NewBook{Title: title, Author: "x"})
		require.NoError(t, err)
	}

	got, err := svc.ListBooks(ctx, store.Page{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Title)
}

func Test_CopyLifecycle(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	b, err := svc.CreateBook(ctx, NewBook{Title: "T", Author: "A"})
	require.NoError(t, err)

	c, err := svc.CreateCopy(ctx, NewCopy{BookID: b.ID, InventoryNumber: "INV-1"})
	require.NoError(t, err)
	assert.Equal(t, CopyAvailable, c.Status)
	assert.Equal(t, calendar.New(2024, 5, 10), c.AcquisitionDate)

	_, err = svc.CreateCopy(ctx, NewCopy{BookID: b.ID, InventoryNumber: "INV-1"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.CreateCopy(ctx, NewCopy{BookID: 999, InventoryNumber: "INV-2"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	byInv, err := svc.GetCopyByInventory(ctx, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, byInv.ID)

	avail, err := svc.ListAvailableCopies(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, avail, 1)

	borrowed, err := svc.SetCopyStatus(ctx, c.ID, CopyBorrowed)
	require.NoError(t, err)
	assert.Equal(t, CopyBorrowed, borrowed.Status)

	avail, err = svc.ListAvailableCopies(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, avail)

	status := CopyBorrowed
	listed, err := svc.ListCopies(ctx, CopyFilter{Status: &status}, store.Page{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	titles, err := svc.BookTitles(ctx, []int64{b.ID, 12345})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{b.ID: "T"}, titles)

	_, err = svc.UpdateCopy(ctx, c.ID, CopyPatch{Status: ptr(CopyStatus("lost"))})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func Test_DeleteBook_CascadesToCopies(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	b, err := svc.CreateBook(ctx, NewBook{Title: "T", Author: "A"})
	require.NoError(t, err)
	c, err := svc.CreateCopy(ctx, NewCopy{BookID: b.ID, InventoryNumber: "INV-1"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBook(ctx, b.ID))

	_, err = svc.GetCopy(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func Test_BlankISBNIsStoredAsNull(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	first, err := svc.CreateBook(ctx, NewBook{Title: "T1", Author: "A", ISBN: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, first.ISBN)

	second, err := svc.CreateBook(ctx, NewBook{Title: "T2", Author: "A", ISBN: ptr("  ")})
	require.NoError(t, err)
	assert.Nil(t, second.ISBN)

	withISBN, err := svc.CreateBook(ctx, NewBook{Title: "T3", Author: "A", ISBN: ptr("978-0")})
	require.NoError(t, err)
	require.NotNil(t, withISBN.ISBN)

	cleared, err := svc.UpdateBook(ctx, withISBN.ID, BookPatch{ISBN: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, cleared.ISBN)

	_, err = svc.CreateBook(ctx, NewBook{Title: "T4", Author: "A", ISBN: ptr("978-1")})
	require.NoError(t, err)
	_, err = svc.CreateBook(ctx, NewBook{Title: "T5", Author: "A", ISBN: ptr("978-1")})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func Test_CreateCopy_SurfacesLookupFailure(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	b, err := svc.CreateBook(ctx, NewBook{Title: "T", Author: "A"})
	require.NoError(t, err)

	// the inventory lookup fails while the book lookup still works
	_, err = st.DB().ExecContext(ctx, `ALTER TABLE copies RENAME TO copies_moved`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, err := st.DB().ExecContext(context.Background(), `ALTER TABLE copies_moved RENAME TO copies`)
		require.NoError(t, err)
	})

	_, err = svc.CreateCopy(ctx, NewCopy{BookID: b.ID, InventoryNumber: "INV-1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrNotFound)
	assert.NotErrorIs(t, err, apperr.ErrConflict)
	assert.Contains(t, err.Error(), `get copy "INV-1"`)
}
