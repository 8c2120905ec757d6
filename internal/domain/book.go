package domain

import (
	"context"
	"strings"
	"time"
)

// ISBNLength is the exact length of an ISBN-13.
const ISBNLength = 13

// Book is a catalog entry. Availability is not stored on it; see Availability.
type Book struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Genre       string    `json:"genre"`
	ISBN        string    `json:"isbn"`
	TotalCopies int       `json:"total_copies"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DisplayTitle renders "Title by Author".
func (b Book) DisplayTitle() string {
	return b.Title + " by " + b.Author
}

// GenreList splits a comma separated genre.
func (b Book) GenreList() []string {
	parts := strings.Split(b.Genre, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BookWithLoans pairs a book with its live active-loan count, as read from
// the store in the same query.
type BookWithLoans struct {
	Book
	ActiveLoans int
}

// Availability derives the copy counts of the book.
func (b BookWithLoans) Availability() Availability {
	return NewAvailability(b.TotalCopies, b.ActiveLoans)
}

// BookInput carries the editable fields of a book.
type BookInput struct {
	Title       string `json:"title" validate:"required,max=255"`
	Author      string `json:"author" validate:"required,max=255"`
	Genre       string `json:"genre" validate:"required,max=100"`
	ISBN        string `json:"isbn" validate:"required,len=13"`
	TotalCopies int    `json:"total_copies" validate:"gt=0"`
}

// BookPatch is a partial update; nil fields are left unchanged.
type BookPatch struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Genre       *string `json:"genre"`
	ISBN        *string `json:"isbn"`
	TotalCopies *int    `json:"total_copies"`
}

// Apply merges p onto b and returns the resulting input.
func (p BookPatch) Apply(b Book) BookInput {
	in := BookInput{
		Title:       b.Title,
		Author:      b.Author,
		Genre:       b.Genre,
		ISBN:        b.ISBN,
		TotalCopies: b.TotalCopies,
	}
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Author != nil {
		in.Author = *p.Author
	}
	if p.Genre != nil {
		in.Genre = *p.Genre
	}
	if p.ISBN != nil {
		in.ISBN = *p.ISBN
	}
	if p.TotalCopies != nil {
		in.TotalCopies = *p.TotalCopies
	}
	return in
}

// BookRepository is the port for catalog persistence. Stores report an ISBN
// collision on create as ErrConstraintConflict.
type BookRepository interface {
	CreateBook(ctx context.Context, in BookInput, now time.Time) (*Book, error)
	UpdateBook(ctx context.Context, id int64, in BookInput, now time.Time) (*Book, error)
	// DeleteBook removes the book and, by cascade, all of its loans.
	DeleteBook(ctx context.Context, id int64) error
	// GetBook returns a NotFoundError when no book has id.
	GetBook(ctx context.Context, id int64) (*BookWithLoans, error)
	ISBNTaken(ctx context.Context, isbn string, exceptID int64) (bool, error)
	ListBooks(ctx context.Context, f BookFilter, p Page) ([]BookWithLoans, int, error)
	CountBooks(ctx context.Context) (int, error)
}
