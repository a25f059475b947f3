// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"librecords/internal/apperr"
	"librecords/internal/calendar"
	"librecords/internal/store"
)

var (
	readerColumns    = []any{"id", "full_name", "library_card", "email", "phone", "address", "status", "registration_date"}
	librarianColumns = []any{"id", "full_name", "position", "login", "password_hash", "password_salt", "role", "created_at"}
)

// service implements the Service interface.
type service struct {
	store  *store.Store
	logger *zap.Logger
	clock  calendar.Clock
}

// NewService creates a new membership service instance.
func NewService(st *store.Store, logger *zap.Logger, clock calendar.Clock) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		store:  st,
		logger: logger.Named("membership"),
		clock:  clock,
	}
}

func (s *service) readers() *goqu.SelectDataset {
	return store.Dialect.From("readers").Select(readerColumns...)
}

func (s *service) ListReaders(ctx context.Context, page store.Page) ([]Reader, error) {
	readers := []Reader{}
	if err := store.Select(ctx, s.store.DB(), &readers, page.Apply(s.readers().Order(goqu.C("id").Asc()))); err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}
	return readers, nil
}

func (s *service) getReader(ctx context.Context, where goqu.Ex, key any) (*Reader, error) {
	var r Reader
	if err := store.Get(ctx, s.store.DB(), &r, s.readers().Where(where)); err != nil {
		return nil, fmt.Errorf("get reader %v: %w", key, store.MapNoRows(err, "reader", key))
	}
	return &r, nil
}

func (s *service) GetReader(ctx context.Context, id int64) (*Reader, error) {
	return s.getReader(ctx, goqu.Ex{"id": id}, id)
}

func (s *service) GetReaderByCard(ctx context.Context, card string) (*Reader, error) {
	return s.getReader(ctx, goqu.Ex{"library_card": card}, card)
}

// CreateReader registers a reader as active, dated today.
func (s *service) CreateReader(ctx context.Context, in NewReader) (*Reader, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.GetReaderByCard(ctx, in.LibraryCard); err == nil {
		return nil, apperr.Conflict("reader", "library_card", in.LibraryCard)
	}

	ds := store.Dialect.Insert("readers").Rows(goqu.Record{
		"full_name":         in.FullName,
		"library_card":      in.LibraryCard,
		"email":             store.Nullable(in.Email),
		"phone":             store.Nullable(in.Phone),
		"address":           store.Nullable(in.Address),
		"status":            string(ReaderActive),
		"registration_date": calendar.Today(s.clock),
	}).Returning(readerColumns...)

	var r Reader
	if err := store.InsertReturning(ctx, s.store.DB(), &r, ds); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.Conflict("reader", "library_card", in.LibraryCard)
		}
		return nil, fmt.Errorf("insert reader: %w", err)
	}

	s.logger.Info("reader registered", zap.Int64("reader_id", r.ID), zap.String("library_card", r.LibraryCard))
	return &r, nil
}

func (s *service) UpdateReader(ctx context.Context, id int64, patch ReaderPatch) (*Reader, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	rec := goqu.Record{}
	store.Assign(rec, "full_name", patch.FullName)
	store.Assign(rec, "email", patch.Email)
	store.Assign(rec, "phone", patch.Phone)
	store.Assign(rec, "address", patch.Address)
	if patch.Status != nil {
		rec["status"] = string(*patch.Status)
	}
	if len(rec) == 0 {
		return s.GetReader(ctx, id)
	}
	return s.updateReader(ctx, id, rec)
}

func (s *service) SetReaderStatus(ctx context.Context, id int64, status ReaderStatus) (*Reader, error) {
	if !status.Valid() {
		return nil, apperr.FieldErrors{"status": "must be active or blocked"}
	}
	r, err := s.updateReader(ctx, id, goqu.Record{"status": string(status)})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reader status set", zap.Int64("reader_id", id), zap.String("status", string(status)))
	return r, nil
}

func (s *service) updateReader(ctx context.Context, id int64, rec goqu.Record) (*Reader, error) {
	ds := store.Dialect.Update("readers").Set(rec).Where(goqu.C("id").Eq(id)).Returning(readerColumns...)

	var r Reader
	if err := store.UpdateReturning(ctx, s.store.DB(), &r, ds); err != nil {
		return nil, fmt.Errorf("update reader %d: %w", id, store.MapNoRows(err, "reader", id))
	}
	return &r, nil
}

// DeleteReader removes the reader together with every loan they hold. The
// copies on their active loans go back to available.
func (s *service) DeleteReader(ctx context.Context, id int64) error {
	var freed int64
	err := s.store.WithTx(ctx, "delete_reader", func(ctx context.Context, tx *sqlx.Tx) error {
		// reader before copies, the order borrows lock in
		var locked int64
		err := tx.GetContext(ctx, &locked, `SELECT id FROM readers WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return fmt.Errorf("lock reader %d: %w", id, store.MapNoRows(err, "reader", id))
		}

		held := store.Dialect.From("loans").Select("copy_id").Where(goqu.Ex{
			"reader_id": id,
			"status":    "active",
		})
		free := store.Dialect.Update("copies").
			Set(goqu.Record{"status": "available"}).
			Where(goqu.C("id").In(held))
		if freed, err = store.Update(ctx, tx, free); err != nil {
			return fmt.Errorf("free copies of reader %d: %w", id, err)
		}

		if _, err := store.Delete(ctx, tx, store.Dialect.Delete("readers").Where(goqu.C("id").Eq(id))); err != nil {
			return fmt.Errorf("delete reader %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("reader deleted", zap.Int64("reader_id", id), zap.Int64("freed_copies", freed))
	return nil
}

func (s *service) ReaderNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	var rows []struct {
		ID       int64  `db:"id"`
		FullName string `db:"full_name"`
	}
	ds := store.Dialect.From("readers").Select("id", "full_name").Where(goqu.C("id").In(ids))
	if err := store.Select(ctx, s.store.DB(), &rows, ds); err != nil {
		return nil, fmt.Errorf("reader names: %w", err)
	}
	for _, r := range rows {
		names[r.ID] = r.FullName
	}
	return names, nil
}

func (s *service) librarians() *goqu.SelectDataset {
	return store.Dialect.From("librarians").Select(librarianColumns...)
}

func (s *service) ListLibrarians(ctx context.Context, page store.Page) ([]Librarian, error) {
	out := []Librarian{}
	if err := store.Select(ctx, s.store.DB(), &out, page.Apply(s.librarians().Order(goqu.C("id").Asc()))); err != nil {
		return nil, fmt.Errorf("list librarians: %w", err)
	}
	return out, nil
}

func (s *service) GetLibrarian(ctx context.Context, id int64) (*Librarian, error) {
	var l Librarian
	if err := store.Get(ctx, s.store.DB(), &l, s.librarians().Where(goqu.C("id").Eq(id))); err != nil {
		return nil, fmt.Errorf("get librarian %d: %w", id, store.MapNoRows(err, "librarian", id))
	}
	return &l, nil
}

func (s *service) CreateLibrarian(ctx context.Context, in NewLibrarian) (*Librarian, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = RoleLibrarian
	}

	hash, salt, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	ds := store.Dialect.Insert("librarians").Rows(goqu.Record{
		"full_name":     in.FullName,
		"position":      store.Nullable(in.Position),
		"login":         in.Login,
		"password_hash": hash,
		"password_salt": salt,
		"role":          string(in.Role),
	}).Returning(librarianColumns...)

	var l Librarian
	if err := store.InsertReturning(ctx, s.store.DB(), &l, ds); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.Conflict("librarian", "login", in.Login)
		}
		return nil, fmt.Errorf("insert librarian: %w", err)
	}

	s.logger.Info("librarian created", zap.Int64("librarian_id", l.ID), zap.String("role", string(l.Role)))
	return &l, nil
}

func (s *service) ChangeLibrarianPassword(ctx context.Context, id int64, change PasswordChange) error {
	if err := change.Validate(); err != nil {
		return err
	}

	l, err := s.GetLibrarian(ctx, id)
	if err != nil {
		return err
	}
	ok, err := passwordMatches(change.Current, l.PasswordSalt, l.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password of librarian %d: %w", id, err)
	}
	if !ok {
		s.logger.Warn("password change rejected", zap.Int64("librarian_id", id))
		return apperr.Rejected("current password does not match")
	}

	hash, salt, err := hashPassword(change.New)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.store.DB().ExecContext(ctx,
		`UPDATE librarians SET password_hash = $1, password_salt = $2 WHERE id = $3`,
		hash, salt, id,
	)
	if err != nil {
		return fmt.Errorf("update password of librarian %d: %w", id, err)
	}
	return nil
}

// DeleteLibrarian removes the record; loans they issued keep a null
// librarian_id.
func (s *service) DeleteLibrarian(ctx context.Context, id int64) error {
	n, err := store.Delete(ctx, s.store.DB(), store.Dialect.Delete("librarians").Where(goqu.C("id").Eq(id)))
	if err != nil {
		return fmt.Errorf("delete librarian %d: %w", id, err)
	}
	if n == 0 {
		return apperr.NotFound("librarian", id)
	}
	s.logger.Info("librarian deleted", zap.Int64("librarian_id", id))
	return nil
}
