package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"lending/internal/domain"
)

// BookView is a book as returned to callers: the stored fields plus the
// availability derived from its live active-loan count.
type BookView struct {
	domain.Book
	AvailableCopies    int      `json:"available_copies"`
	BorrowedCopies     int      `json:"borrowed_copies"`
	Available          bool     `json:"available"`
	AvailabilityStatus string   `json:"availability_status"`
	DisplayTitle       string   `json:"display_title"`
	Genres             []string `json:"genres"`
}

// NewBookView derives the view of b.
func NewBookView(b domain.BookWithLoans) BookView {
	a := b.Availability()
	return BookView{
		Book:               b.Book,
		AvailableCopies:    a.AvailableCopies,
		BorrowedCopies:     a.BorrowedCopies,
		Available:          a.Available,
		AvailabilityStatus: a.Status(),
		DisplayTitle:       b.DisplayTitle(),
		Genres:             b.GenreList(),
	}
}

// BookPage is one page of the catalog.
type BookPage struct {
	Books      []BookView        `json:"books"`
	Pagination domain.Pagination `json:"pagination"`
}

// CatalogService encapsulates the catalog use cases.
type CatalogService struct {
	books  domain.BookRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewCatalogService creates a CatalogService backed by the given repository.
func NewCatalogService(books domain.BookRepository, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{books: books, now: time.Now, logger: logger}
}

// WithClock replaces the time source used for timestamps.
func (s *CatalogService) WithClock(now func() time.Time) *CatalogService {
	s.now = now
	return s
}

// ListBooks returns the books matching f ordered by title.
func (s *CatalogService) ListBooks(ctx context.Context, actor *domain.Actor, f domain.BookFilter, p domain.Page) (*BookPage, error) {
	if err := domain.Authorize(actor, domain.ActionViewCatalog, 0); err != nil {
		return nil, err
	}
	books, total, err := s.books.ListBooks(ctx, f, p)
	if err != nil {
		return nil, err
	}
	page := &BookPage{Books: make([]BookView, 0, len(books)), Pagination: domain.NewPagination(p, total)}
	for _, b := range books {
		page.Books = append(page.Books, NewBookView(b))
	}
	return page, nil
}

// GetBook returns one book with its availability.
func (s *CatalogService) GetBook(ctx context.Context, actor *domain.Actor, id int64) (*BookView, error) {
	if err := domain.Authorize(actor, domain.ActionViewCatalog, 0); err != nil {
		return nil, err
	}
	b, err := s.books.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	v := NewBookView(*b)
	return &v, nil
}

// CreateBook validates in and adds it to the catalog. Nothing is stored when
// any field is rejected.
func (s *CatalogService) CreateBook(ctx context.Context, actor *domain.Actor, in domain.BookInput) (*BookView, error) {
	if err := domain.Authorize(actor, domain.ActionManageBooks, 0); err != nil {
		return nil, err
	}
	in = normalizeBook(in)
	ve, err := validateStruct(in)
	if err != nil {
		return nil, err
	}
	if !ve.HasField("isbn") {
		taken, err := s.books.ISBNTaken(ctx, in.ISBN, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			ve.Add("isbn", "has already been taken")
		}
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	b, err := s.books.CreateBook(ctx, in, s.now())
	if errors.Is(err, domain.ErrConstraintConflict) {
		return nil, isbnTaken()
	}
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "book created", "book_id", b.ID, "isbn", b.ISBN, "actor", actor.UserID)
	v := NewBookView(domain.BookWithLoans{Book: *b})
	return &v, nil
}

// UpdateBook applies patch to the book. The ISBN cannot change once assigned.
func (s *CatalogService) UpdateBook(ctx context.Context, actor *domain.Actor, id int64, patch domain.BookPatch) (*BookView, error) {
	if err := domain.Authorize(actor, domain.ActionManageBooks, 0); err != nil {
		return nil, err
	}
	current, err := s.books.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	in := normalizeBook(patch.Apply(current.Book))
	ve, err := validateStruct(in)
	if err != nil {
		return nil, err
	}
	if in.ISBN != current.ISBN && !ve.HasField("isbn") {
		ve.Add("isbn", "cannot be changed")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	b, err := s.books.UpdateBook(ctx, id, in, s.now())
	if err != nil {
		return nil, err
	}
	v := NewBookView(domain.BookWithLoans{Book: *b, ActiveLoans: current.ActiveLoans})
	return &v, nil
}

// DeleteBook removes a book and every loan that references it.
func (s *CatalogService) DeleteBook(ctx context.Context, actor *domain.Actor, id int64) error {
	if err := domain.Authorize(actor, domain.ActionManageBooks, 0); err != nil {
		return err
	}
	if err := s.books.DeleteBook(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "book deleted", "book_id", id, "actor", actor.UserID)
	return nil
}

func normalizeBook(in domain.BookInput) domain.BookInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Genre = strings.TrimSpace(in.Genre)
	in.ISBN = strings.TrimSpace(in.ISBN)
	return in
}

func isbnTaken() error {
	ve := &domain.ValidationError{}
	ve.Add("isbn", "has already been taken")
	return ve
}
