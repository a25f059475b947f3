// internal/circulation/view.go
package circulation

import (
	"context"
	"fmt"

	"librecords/internal/calendar"
	"librecords/internal/catalog"
)

// CopyLookup resolves copies and book titles for loan views.
type CopyLookup interface {
	CopiesByID(ctx context.Context, ids []int64) (map[int64]catalog.Copy, error)
	BookTitles(ctx context.Context, ids []int64) (map[int64]string, error)
}

// ReaderLookup resolves reader names for loan views.
type ReaderLookup interface {
	ReaderNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Projector turns loans into LoanViews with a fixed number of lookups per
// call, however many loans are passed.
type Projector struct {
	copies  CopyLookup
	readers ReaderLookup
	clock   calendar.Clock
}

// NewProjector builds a Projector. clock decides which loans show as
// overdue; nil means the system clock.
func NewProjector(copies CopyLookup, readers ReaderLookup, clock calendar.Clock) *Projector {
	return &Projector{copies: copies, readers: readers, clock: clock}
}

func (p *Projector) Views(ctx context.Context, loans []Loan) ([]LoanView, error) {
	views := make([]LoanView, len(loans))
	if len(loans) == 0 {
		return views, nil
	}

	copyIDs := make([]int64, 0, len(loans))
	readerIDs := make([]int64, 0, len(loans))
	for _, l := range loans {
		copyIDs = append(copyIDs, l.CopyID)
		readerIDs = append(readerIDs, l.ReaderID)
	}

	copies, err := p.copies.CopiesByID(ctx, copyIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve copies: %w", err)
	}
	bookIDs := make([]int64, 0, len(copies))
	for _, c := range copies {
		bookIDs = append(bookIDs, c.BookID)
	}
	titles, err := p.copies.BookTitles(ctx, bookIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve book titles: %w", err)
	}
	names, err := p.readers.ReaderNames(ctx, readerIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve reader names: %w", err)
	}

	today := calendar.Today(p.clock)
	for i, l := range loans {
		views[i].Loan = l
		if l.Overdue(today) {
			views[i].Overdue = true
			views[i].DaysOverdue = l.DueDate.DaysUntil(today)
		}
		if name, ok := names[l.ReaderID]; ok {
			views[i].ReaderName = &name
		}
		c, ok := copies[l.CopyID]
		if !ok {
			continue
		}
		inventory := c.InventoryNumber
		views[i].CopyInventory = &inventory
		if title, ok := titles[c.BookID]; ok {
			views[i].BookTitle = &title
		}
	}
	return views, nil
}

func (p *Projector) View(ctx context.Context, loan Loan) (*LoanView, error) {
	views, err := p.Views(ctx, []Loan{loan})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}
