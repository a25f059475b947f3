// internal/membership/service.go
package membership

import (
	"context"

	"librecords/internal/store"
)

// Service defines the interface for the membership service.
type Service interface {
	ListReaders(ctx context.Context, page store.Page) ([]Reader, error)
	GetReader(ctx context.Context, id int64) (*Reader, error)
	GetReaderByCard(ctx context.Context, card string) (*Reader, error)
	CreateReader(ctx context.Context, in NewReader) (*Reader, error)
	UpdateReader(ctx context.Context, id int64, patch ReaderPatch) (*Reader, error)
	SetReaderStatus(ctx context.Context, id int64, status ReaderStatus) (*Reader, error)
	DeleteReader(ctx context.Context, id int64) error
	// ReaderNames maps each existing id to the reader's full name.
	ReaderNames(ctx context.Context, ids []int64) (map[int64]string, error)

	ListLibrarians(ctx context.Context, page store.Page) ([]Librarian, error)
	GetLibrarian(ctx context.Context, id int64) (*Librarian, error)
	CreateLibrarian(ctx context.Context, in NewLibrarian) (*Librarian, error)
	// ChangeLibrarianPassword replaces the stored hash when current matches.
	ChangeLibrarianPassword(ctx context.Context, id int64, change PasswordChange) error
	DeleteLibrarian(ctx context.Context, id int64) error
}
