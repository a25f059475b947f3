// internal/catalog/domain.go
package catalog

import (
	"strings"
	"time"

	"librecords/internal/calendar"
	"librecords/internal/validator"
)

// Book is a bibliographic work; physical instances are Copies.
type Book struct {
	ID        int64      `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	Author    string     `json:"author" db:"author"`
	Year      *int       `json:"year" db:"year"`
	Publisher *string    `json:"publisher" db:"publisher"`
	Genre     *string    `json:"genre" db:"genre"`
	ISBN      *string    `json:"isbn" db:"isbn"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}

// NewBook holds the fields accepted when a book is created.
type NewBook struct {
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Year      *int    `json:"year"`
	Publisher *string `json:"publisher"`
	Genre     *string `json:"genre"`
	ISBN      *string `json:"isbn"`
}

// BookPatch is a partial update; nil fields are left untouched.
type BookPatch struct {
	Title     *string `json:"title"`
	Author    *string `json:"author"`
	Year      *int    `json:"year"`
	Publisher *string `json:"publisher"`
	Genre     *string `json:"genre"`
	ISBN      *string `json:"isbn"`
}

const (
	minYear = 1000
	maxYear = 2100
)

func (b NewBook) Validate() error {
	v := validator.New()
	v.Length(b.Title, 1, 255, "title")
	v.Length(b.Author, 1, 255, "author")
	v.OptionalRange(b.Year, minYear, maxYear, "year")
	v.OptionalLength(b.Publisher, 0, 255, "publisher")
	v.OptionalLength(b.Genre, 0, 100, "genre")
	v.OptionalLength(b.ISBN, 0, 20, "isbn")
	return v.Err()
}

func (p BookPatch) Validate() error {
	v := validator.New()
	v.OptionalLength(p.Title, 1, 255, "title")
	v.OptionalLength(p.Author, 1, 255, "author")
	v.OptionalRange(p.Year, minYear, maxYear, "year")
	v.OptionalLength(p.Publisher, 0, 255, "publisher")
	v.OptionalLength(p.Genre, 0, 100, "genre")
	v.OptionalLength(p.ISBN, 0, 20, "isbn")
	return v.Err()
}

// isbnValue is the stored form of an ISBN. A blank ISBN is stored as NULL
// so any number of books can lack one.
func isbnValue(isbn *string) any {
	if isbn == nil || strings.TrimSpace(*isbn) == "" {
		return nil
	}
	return *isbn
}

// CopyStatus is the availability of one physical copy.
type CopyStatus string

const (
	CopyAvailable   CopyStatus = "available"
	CopyBorrowed    CopyStatus = "borrowed"
	CopyUnderRepair CopyStatus = "under_repair"
	CopyWrittenOff  CopyStatus = "written_off"
)

var copyStatuses = []CopyStatus{CopyAvailable, CopyBorrowed, CopyUnderRepair, CopyWrittenOff}

func (s CopyStatus) Valid() bool {
	return validator.PermittedValue(s, copyStatuses...)
}

// Copy is one physical instance of a Book.
type Copy struct {
	ID              int64         `json:"id" db:"id"`
	BookID          int64         `json:"book_id" db:"book_id"`
	InventoryNumber string        `json:"inventory_number" db:"inventory_number"`
	Status          CopyStatus    `json:"status" db:"status"`
	AcquisitionDate calendar.Date `json:"acquisition_date" db:"acquisition_date"`
}

// CopyView is a Copy as served over HTTP, with the title of its book.
type CopyView struct {
	Copy
	BookTitle *string `json:"book_title"`
}

// NewCopy holds the fields accepted when a copy is registered. Status
// defaults to available.
type NewCopy struct {
	BookID          int64      `json:"book_id"`
	InventoryNumber string     `json:"inventory_number"`
	Status          CopyStatus `json:"status"`
}

// CopyPatch is a partial update of a copy. Only the status is mutable.
type CopyPatch struct {
	Status *CopyStatus `json:"status"`
}

func (c NewCopy) Validate() error {
	v := validator.New()
	v.Check(c.BookID >= 1, "book_id", "must be a positive integer")
	v.Length(c.InventoryNumber, 1, 50, "inventory_number")
	v.Check(c.Status == "" || c.Status.Valid(), "status", "must be one of available, borrowed, under_repair, written_off")
	return v.Err()
}

func (p CopyPatch) Validate() error {
	v := validator.New()
	v.Check(p.Status == nil || p.Status.Valid(), "status", "must be one of available, borrowed, under_repair, written_off")
	return v.Err()
}

// CopyFilter narrows a copy listing.
type CopyFilter struct {
	Status *CopyStatus
}
