package memory

import (
	"context"
	"sort"
	"time"

	"lending/internal/domain"
)

// --- BookRepository ---

// CreateBook stores a new book.
func (db *DB) CreateBook(ctx context.Context, in domain.BookInput, now time.Time) (*domain.Book, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isbnTaken(in.ISBN, 0) {
		return nil, domain.ErrConstraintConflict
	}
	db.bookIDCounter++
	b := &domain.Book{
		ID:          db.bookIDCounter,
		Title:       in.Title,
		Author:      in.Author,
		Genre:       in.Genre,
		ISBN:        in.ISBN,
		TotalCopies: in.TotalCopies,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	db.books[b.ID] = b
	cp := *b
	return &cp, nil
}

// UpdateBook replaces the editable fields of a book.
func (db *DB) UpdateBook(ctx context.Context, id int64, in domain.BookInput, now time.Time) (*domain.Book, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, ok := db.books[id]
	if !ok {
		return nil, domain.NewNotFound("book", id)
	}
	if db.isbnTaken(in.ISBN, id) {
		return nil, domain.ErrConstraintConflict
	}
	b.Title = in.Title
	b.Author = in.Author
	b.Genre = in.Genre
	b.ISBN = in.ISBN
	b.TotalCopies = in.TotalCopies
	b.UpdatedAt = now
	cp := *b
	return &cp, nil
}

// DeleteBook removes a book together with all of its loans.
func (db *DB) DeleteBook(ctx context.Context, id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.books[id]; !ok {
		return domain.NewNotFound("book", id)
	}
	delete(db.books, id)
	for lid, l := range db.loans {
		if l.BookID == id {
			delete(db.loans, lid)
		}
	}
	return nil
}

// GetBook returns a book with its active-loan count.
func (db *DB) GetBook(ctx context.Context, id int64) (*domain.BookWithLoans, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, ok := db.books[id]
	if !ok {
		return nil, domain.NewNotFound("book", id)
	}
	return &domain.BookWithLoans{Book: *b, ActiveLoans: db.activeCount(id)}, nil
}

// ISBNTaken reports whether another book than exceptID holds isbn.
func (db *DB) ISBNTaken(ctx context.Context, isbn string, exceptID int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.isbnTaken(isbn, exceptID), nil
}

// ListBooks filters, orders by title and paginates the catalog.
func (db *DB) ListBooks(ctx context.Context, f domain.BookFilter, p domain.Page) ([]domain.BookWithLoans, int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var matched []domain.BookWithLoans
	for _, b := range db.books {
		bw := domain.BookWithLoans{Book: *b, ActiveLoans: db.activeCount(b.ID)}
		if f.Matches(bw) {
			matched = append(matched, bw)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Title != matched[j].Title {
			return matched[i].Title < matched[j].Title
		}
		return matched[i].ID < matched[j].ID
	})
	start, end := p.Bounds(len(matched))
	return matched[start:end], len(matched), nil
}

// CountBooks returns the number of catalog entries.
func (db *DB) CountBooks(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.books), nil
}

func (db *DB) isbnTaken(isbn string, exceptID int64) bool {
	for _, b := range db.books {
		if b.ISBN == isbn && b.ID != exceptID {
			return true
		}
	}
	return false
}

func (db *DB) activeCount(bookID int64) int {
	n := 0
	for _, l := range db.loans {
		if l.BookID == bookID && l.Active() {
			n++
		}
	}
	return n
}

// --- LoanRepository ---

// GetLoan returns a loan joined with its borrower and book.
func (db *DB) GetLoan(ctx context.Context, id int64) (*domain.LoanDetails, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	l, ok := db.loans[id]
	if !ok {
		return nil, domain.NewNotFound("loan", id)
	}
	d := db.details(*l)
	return &d, nil
}

// ListLoans filters, orders newest first and paginates loans.
func (db *DB) ListLoans(ctx context.Context, f domain.LoanFilter, p domain.Page) ([]domain.LoanDetails, int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	matched := db.matchLoans(f)
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	start, end := p.Bounds(len(matched))
	out := make([]domain.LoanDetails, 0, end-start)
	for _, l := range matched[start:end] {
		out = append(out, db.details(l))
	}
	return out, len(matched), nil
}

// DeleteLoan removes a loan record.
func (db *DB) DeleteLoan(ctx context.Context, id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.loans[id]; !ok {
		return domain.NewNotFound("loan", id)
	}
	delete(db.loans, id)
	return nil
}

// CountLoans counts loans matching f.
func (db *DB) CountLoans(ctx context.Context, f domain.LoanFilter) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.matchLoans(f)), nil
}

// OverdueBorrowers lists the distinct users holding an overdue loan, by ID.
func (db *DB) OverdueBorrowers(ctx context.Context, now time.Time) ([]domain.UserRef, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	seen := make(map[int64]bool)
	var out []domain.UserRef
	for _, l := range db.loans {
		if !l.IsOverdue(now) || seen[l.UserID] {
			continue
		}
		seen[l.UserID] = true
		out = append(out, db.userRef(l.UserID))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (db *DB) matchLoans(f domain.LoanFilter) []domain.Loan {
	var out []domain.Loan
	for _, l := range db.loans {
		if f.Matches(*l) {
			out = append(out, *l)
		}
	}
	return out
}

func (db *DB) details(l domain.Loan) domain.LoanDetails {
	d := domain.LoanDetails{Loan: l, User: db.userRef(l.UserID)}
	if b, ok := db.books[l.BookID]; ok {
		d.Book = domain.BookRef{ID: b.ID, Title: b.Title, Author: b.Author, ISBN: b.ISBN}
	}
	return d
}

func (db *DB) userRef(id int64) domain.UserRef {
	ref := domain.UserRef{ID: id}
	if u := db.userByID(id); u != nil {
		ref.Name = u.FullName()
		ref.Email = u.Email
	}
	return ref
}

// --- LendingStore ---

// WithinTx runs fn while holding the store lock. Writes made through the
// transaction are staged and applied only when fn returns nil.
func (db *DB) WithinTx(ctx context.Context, fn func(tx domain.LendingTx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx := &lendingTx{db: db, staged: make(map[int64]domain.Loan)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, l := range tx.staged {
		cp := l
		db.loans[id] = &cp
	}
	return nil
}

type lendingTx struct {
	db     *DB
	staged map[int64]domain.Loan
}

// loan returns the transaction's view of a loan.
func (tx *lendingTx) loan(id int64) (domain.Loan, bool) {
	if l, ok := tx.staged[id]; ok {
		return l, true
	}
	if l, ok := tx.db.loans[id]; ok {
		return *l, true
	}
	return domain.Loan{}, false
}

func (tx *lendingTx) each(fn func(domain.Loan)) {
	for id, l := range tx.db.loans {
		if _, ok := tx.staged[id]; !ok {
			fn(*l)
		}
	}
	for _, l := range tx.staged {
		fn(l)
	}
}

func (tx *lendingTx) LockBook(ctx context.Context, id int64) (*domain.Book, error) {
	b, ok := tx.db.books[id]
	if !ok {
		return nil, domain.NewNotFound("book", id)
	}
	cp := *b
	return &cp, nil
}

func (tx *lendingTx) ActiveLoanCount(ctx context.Context, bookID int64) (int, error) {
	var loans []domain.Loan
	tx.each(func(l domain.Loan) { loans = append(loans, l) })
	return domain.CountActive(loans, bookID), nil
}

// holds reports whether userID has an active loan of bookID in the
// transaction's view.
func (tx *lendingTx) holds(userID, bookID int64) bool {
	held := false
	tx.each(func(l domain.Loan) {
		if l.UserID == userID && l.BookID == bookID && l.Active() {
			held = true
		}
	})
	return held
}

func (tx *lendingTx) HasActiveLoan(ctx context.Context, userID, bookID int64) (bool, error) {
	return tx.holds(userID, bookID), nil
}

func (tx *lendingTx) InsertLoan(ctx context.Context, l *domain.Loan) error {
	if l.Active() && tx.holds(l.UserID, l.BookID) {
		return domain.ErrConstraintConflict
	}
	if _, ok := tx.db.books[l.BookID]; !ok {
		return domain.NewNotFound("book", l.BookID)
	}
	tx.db.loanIDCounter++
	l.ID = tx.db.loanIDCounter
	tx.staged[l.ID] = *l
	return nil
}

func (tx *lendingTx) LockLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	l, ok := tx.loan(id)
	if !ok {
		return nil, domain.NewNotFound("loan", id)
	}
	return &l, nil
}

func (tx *lendingTx) SaveReturn(ctx context.Context, l *domain.Loan) error {
	if _, ok := tx.loan(l.ID); !ok {
		return domain.NewNotFound("loan", l.ID)
	}
	if err := l.Check(); err != nil {
		return err
	}
	tx.staged[l.ID] = *l
	return nil
}
