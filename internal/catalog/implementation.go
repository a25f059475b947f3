// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"go.uber.org/zap"

	"librecords/internal/apperr"
	"librecords/internal/calendar"
	"librecords/internal/store"
)

var (
	bookColumns = []any{"id", "title", "author", "year", "publisher", "genre", "isbn", "created_at", "updated_at"}
	copyColumns = []any{"id", "book_id", "inventory_number", "status", "acquisition_date"}

	likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
)

// service implements the Service interface.
type service struct {
	store  *store.Store
	logger *zap.Logger
	clock  calendar.Clock
}

// NewService creates a new catalog service instance. A nil clock means
// the wall clock.
func NewService(st *store.Store, logger *zap.Logger, clock calendar.Clock) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		store:  st,
		logger: logger.Named("catalog"),
		clock:  clock,
	}
}

func (s *service) books() *goqu.SelectDataset {
	return store.Dialect.From("books").Select(bookColumns...)
}

func (s *service) copies() *goqu.SelectDataset {
	return store.Dialect.From("copies").Select(copyColumns...)
}

func (s *service) ListBooks(ctx context.Context, page store.Page) ([]Book, error) {
	books := []Book{}
	ds := page.Apply(s.books().Order(goqu.C("id").Asc()))
	if err := store.Select(ctx, s.store.DB(), &books, ds); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

func (s *service) GetBook(ctx context.Context, id int64) (*Book, error) {
	var b Book
	if err := store.Get(ctx, s.store.DB(), &b, s.books().Where(goqu.C("id").Eq(id))); err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, store.MapNoRows(err, "book", id))
	}
	return &b, nil
}

func (s *service) CreateBook(ctx context.Context, in NewBook) (*Book, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ds := store.Dialect.Insert("books").Rows(goqu.Record{
		"title":     in.Title,
		"author":    in.Author,
		"year":      store.Nullable(in.Year),
		"publisher": store.Nullable(in.Publisher),
		"genre":     store.Nullable(in.Genre),
		"isbn":      isbnValue(in.ISBN),
	}).Returning(bookColumns...)

	var b Book
	if err := store.InsertReturning(ctx, s.store.DB(), &b, ds); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.Conflict("book", "isbn", store.Nullable(in.ISBN))
		}
		return nil, fmt.Errorf("insert book: %w", err)
	}

	s.logger.Info("book created", zap.Int64("book_id", b.ID), zap.String("title", b.Title))
	return &b, nil
}

func (s *service) UpdateBook(ctx context.Context, id int64, patch BookPatch) (*Book, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	rec := goqu.Record{}
	store.Assign(rec, "title", patch.Title)
	store.Assign(rec, "author", patch.Author)
	store.Assign(rec, "year", patch.Year)
	store.Assign(rec, "publisher", patch.Publisher)
	store.Assign(rec, "genre", patch.Genre)
	if patch.ISBN != nil {
		rec["isbn"] = isbnValue(patch.ISBN)
	}
	if len(rec) == 0 {
		return s.GetBook(ctx, id)
	}
	rec["updated_at"] = goqu.L("NOW()")

	ds := store.Dialect.Update("books").Set(rec).Where(goqu.C("id").Eq(id)).Returning(bookColumns...)

	var b Book
	if err := store.UpdateReturning(ctx, s.store.DB(), &b, ds); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.Conflict("book", "isbn", store.Nullable(patch.ISBN))
		}
		return nil, fmt.Errorf("update book %d: %w", id, store.MapNoRows(err, "book", id))
	}
	return &b, nil
}

func (s *service) DeleteBook(ctx context.Context, id int64) error {
	n, err := store.Delete(ctx, s.store.DB(), store.Dialect.Delete("books").Where(goqu.C("id").Eq(id)))
	if err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	if n == 0 {
		return apperr.NotFound("book", id)
	}
	s.logger.Info("book deleted", zap.Int64("book_id", id))
	return nil
}

// SearchBooks matches text as a case-insensitive substring of the title or
// the author. LIKE wildcards in text match literally.
func (s *service) SearchBooks(ctx context.Context, text string) ([]Book, error) {
	if text == "" {
		return nil, apperr.FieldErrors{"q": "must be provided"}
	}
	pattern := "%" + likeEscaper.Replace(text) + "%"

	books := []Book{}
	ds := s.books().
		Where(goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.C("author").ILike(pattern),
		)).
		Order(goqu.C("id").Asc())
	if err := store.Select(ctx, s.store.DB(), &books, ds); err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	return books, nil
}

func (s *service) BookTitles(ctx context.Context, ids []int64) (map[int64]string, error) {
	titles := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return titles, nil
	}

	var rows []struct {
		ID    int64  `db:"id"`
		Title string `db:"title"`
	}
	ds := store.Dialect.From("books").Select("id", "title").Where(goqu.C("id").In(ids))
	if err := store.Select(ctx, s.store.DB(), &rows, ds); err != nil {
		return nil, fmt.Errorf("book titles: %w", err)
	}
	for _, r := range rows {
		titles[r.ID] = r.Title
	}
	return titles, nil
}

func (s *service) ListCopies(ctx context.Context, filter CopyFilter, page store.Page) ([]Copy, error) {
	ds := s.copies()
	if filter.Status != nil {
		ds = ds.Where(goqu.C("status").Eq(string(*filter.Status)))
	}

	copies := []Copy{}
	if err := store.Select(ctx, s.store.DB(), &copies, page.Apply(ds.Order(goqu.C("id").Asc()))); err != nil {
		return nil, fmt.Errorf("list copies: %w", err)
	}
	return copies, nil
}

func (s *service) GetCopy(ctx context.Context, id int64) (*Copy, error) {
	var c Copy
	if err := store.Get(ctx, s.store.DB(), &c, s.copies().Where(goqu.C("id").Eq(id))); err != nil {
		return nil, fmt.Errorf("get copy %d: %w", id, store.MapNoRows(err, "copy", id))
	}
	return &c, nil
}

func (s *service) GetCopyByInventory(ctx context.Context, inventoryNumber string) (*Copy, error) {
	var c Copy
	ds := s.copies().Where(goqu.C("inventory_number").Eq(inventoryNumber))
	if err := store.Get(ctx, s.store.DB(), &c, ds); err != nil {
		return nil, fmt.Errorf("get copy %q: %w", inventoryNumber, store.MapNoRows(err, "copy", inventoryNumber))
	}
	return &c, nil
}

func (s *service) ListAvailableCopies(ctx context.Context, bookID int64) ([]Copy, error) {
	copies := []Copy{}
	ds := s.copies().
		Where(
			goqu.C("book_id").Eq(bookID),
			goqu.C("status").Eq(string(CopyAvailable)),
		).
		Order(goqu.C("id").Asc())
	if err := store.Select(ctx, s.store.DB(), &copies, ds); err != nil {
		return nil, fmt.Errorf("list available copies of book %d: %w", bookID, err)
	}
	return copies, nil
}

func (s *service) CreateCopy(ctx context.Context, in NewCopy) (*Copy, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = CopyAvailable
	}

	if _, err := s.GetBook(ctx, in.BookID); err != nil {
		return nil, err
	}
	_, err := s.GetCopyByInventory(ctx, in.InventoryNumber)
	switch {
	case err == nil:
		return nil, apperr.Conflict("copy", "inventory_number", in.InventoryNumber)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	ds := store.Dialect.Insert("copies").Rows(goqu.Record{
		"book_id":          in.BookID,
		"inventory_number": in.InventoryNumber,
		"status":           string(in.Status),
		"acquisition_date": calendar.Today(s.clock),
	}).Returning(copyColumns...)

	var c Copy
	if err := store.InsertReturning(ctx, s.store.DB(), &c, ds); err != nil {
		switch {
		case store.IsUniqueViolation(err):
			return nil, apperr.Conflict("copy", "inventory_number", in.InventoryNumber)
		case store.IsForeignKeyViolation(err):
			return nil, apperr.NotFound("book", in.BookID)
		}
		return nil, fmt.Errorf("insert copy: %w", err)
	}

	s.logger.Info("copy registered",
		zap.Int64("copy_id", c.ID),
		zap.Int64("book_id", c.BookID),
		zap.String("inventory_number", c.InventoryNumber),
	)
	return &c, nil
}

func (s *service) UpdateCopy(ctx context.Context, id int64, patch CopyPatch) (*Copy, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.Status == nil {
		return s.GetCopy(ctx, id)
	}
	return s.SetCopyStatus(ctx, id, *patch.Status)
}

func (s *service) SetCopyStatus(ctx context.Context, id int64, status CopyStatus) (*Copy, error) {
	if !status.Valid() {
		return nil, apperr.FieldErrors{"status": "must be one of available, borrowed, under_repair, written_off"}
	}

	ds := store.Dialect.Update("copies").
		Set(goqu.Record{"status": string(status)}).
		Where(goqu.C("id").Eq(id)).
		Returning(copyColumns...)

	var c Copy
	if err := store.UpdateReturning(ctx, s.store.DB(), &c, ds); err != nil {
		return nil, fmt.Errorf("set copy %d status: %w", id, store.MapNoRows(err, "copy", id))
	}

	s.logger.Info("copy status set", zap.Int64("copy_id", id), zap.String("status", string(status)))
	return &c, nil
}

func (s *service) DeleteCopy(ctx context.Context, id int64) error {
	n, err := store.Delete(ctx, s.store.DB(), store.Dialect.Delete("copies").Where(goqu.C("id").Eq(id)))
	if err != nil {
		return fmt.Errorf("delete copy %d: %w", id, err)
	}
	if n == 0 {
		return apperr.NotFound("copy", id)
	}
	s.logger.Info("copy deleted", zap.Int64("copy_id", id))
	return nil
}

func (s *service) CopiesByID(ctx context.Context, ids []int64) (map[int64]Copy, error) {
	out := make(map[int64]Copy, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var copies []Copy
	if err := store.Select(ctx, s.store.DB(), &copies, s.copies().Where(goqu.C("id").In(ids))); err != nil {
		return nil, fmt.Errorf("copies by id: %w", err)
	}
	for _, c := range copies {
		out[c.ID] = c
	}
	return out, nil
}
