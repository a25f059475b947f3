// internal/catalog/service.go
package catalog

import (
	"context"

	"librecords/internal/store"
)

// Service defines the interface for the catalog service.
type Service interface {
	ListBooks(ctx context.Context, page store.Page) ([]Book, error)
	GetBook(ctx context.Context, id int64) (*Book, error)
	CreateBook(ctx context.Context, in NewBook) (*Book, error)
	UpdateBook(ctx context.Context, id int64, patch BookPatch) (*Book, error)
	DeleteBook(ctx context.Context, id int64) error
	SearchBooks(ctx context.Context, text string) ([]Book, error)
	// BookTitles maps each existing id to its title; unknown ids are absent.
	BookTitles(ctx context.Context, ids []int64) (map[int64]string, error)

	ListCopies(ctx context.Context, filter CopyFilter, page store.Page) ([]Copy, error)
	GetCopy(ctx context.Context, id int64) (*Copy, error)
	GetCopyByInventory(ctx context.Context, inventoryNumber string) (*Copy, error)
	ListAvailableCopies(ctx context.Context, bookID int64) ([]Copy, error)
	CreateCopy(ctx context.Context, in NewCopy) (*Copy, error)
	UpdateCopy(ctx context.Context, id int64, patch CopyPatch) (*Copy, error)
	// SetCopyStatus overwrites the status without any loan bookkeeping.
	SetCopyStatus(ctx context.Context, id int64, status CopyStatus) (*Copy, error)
	DeleteCopy(ctx context.Context, id int64) error
	// CopiesByID returns the existing copies among ids.
	CopiesByID(ctx context.Context, ids []int64) (map[int64]Copy, error)
}
