package app_test

import (
	"context"
	"time"

	"lending/internal/domain"
)

type mockUserRepo struct {
	getByEmailFn  func(ctx context.Context, email string) (*domain.User, error)
	getByIDFn     func(ctx context.Context, id int64) (*domain.User, error)
	createFn      func(ctx context.Context, u domain.NewUser) (*domain.User, error)
	countFn       func(ctx context.Context) (int, error)
	countByRoleFn func(ctx context.Context, role domain.Role) (int, error)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, u domain.NewUser) (*domain.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, u)
	}
	return &domain.User{ID: 1, Email: u.Email, Role: u.Role, PasswordHash: u.PasswordHash}, nil
}

func (m *mockUserRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

func (m *mockUserRepo) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	if m.countByRoleFn != nil {
		return m.countByRoleFn(ctx, role)
	}
	return 0, nil
}

type mockSessionRepo struct {
	createFn        func(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error
	getByTokenFn    func(ctx context.Context, token string) (*domain.Session, error)
	deleteFn        func(ctx context.Context, token string) error
	deleteExpiredFn func(ctx context.Context) error
}

func (m *mockSessionRepo) Create(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
	if m.createFn != nil {
		return m.createFn(ctx, userID, token, userAgent, ip, expiresAt)
	}
	return nil
}

func (m *mockSessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.getByTokenFn != nil {
		return m.getByTokenFn(ctx, token)
	}
	return nil, nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, token string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, token)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) error {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx)
	}
	return nil
}

type mockBookRepo struct {
	createFn    func(ctx context.Context, in domain.BookInput, now time.Time) (*domain.Book, error)
	updateFn    func(ctx context.Context, id int64, in domain.BookInput, now time.Time) (*domain.Book, error)
	deleteFn    func(ctx context.Context, id int64) error
	getFn       func(ctx context.Context, id int64) (*domain.BookWithLoans, error)
	isbnTakenFn func(ctx context.Context, isbn string, exceptID int64) (bool, error)
	listFn      func(ctx context.Context, f domain.BookFilter, p domain.Page) ([]domain.BookWithLoans, int, error)
	countFn     func(ctx context.Context) (int, error)
}

func (m *mockBookRepo) CreateBook(ctx context.Context, in domain.BookInput, now time.Time) (*domain.Book, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in, now)
	}
	return &domain.Book{ID: 1, Title: in.Title, Author: in.Author, Genre: in.Genre, ISBN: in.ISBN, TotalCopies: in.TotalCopies, CreatedAt: now, UpdatedAt: now}, nil
}

func (m *mockBookRepo) UpdateBook(ctx context.Context, id int64, in domain.BookInput, now time.Time) (*domain.Book, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, in, now)
	}
	return &domain.Book{ID: id, Title: in.Title, Author: in.Author, Genre: in.Genre, ISBN: in.ISBN, TotalCopies: in.TotalCopies, UpdatedAt: now}, nil
}

func (m *mockBookRepo) DeleteBook(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockBookRepo) GetBook(ctx context.Context, id int64) (*domain.BookWithLoans, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, domain.NewNotFound("book", id)
}

func (m *mockBookRepo) ISBNTaken(ctx context.Context, isbn string, exceptID int64) (bool, error) {
	if m.isbnTakenFn != nil {
		return m.isbnTakenFn(ctx, isbn, exceptID)
	}
	return false, nil
}

func (m *mockBookRepo) ListBooks(ctx context.Context, f domain.BookFilter, p domain.Page) ([]domain.BookWithLoans, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f, p)
	}
	return nil, 0, nil
}

func (m *mockBookRepo) CountBooks(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

type mockLoanRepo struct {
	getFn     func(ctx context.Context, id int64) (*domain.LoanDetails, error)
	listFn    func(ctx context.Context, f domain.LoanFilter, p domain.Page) ([]domain.LoanDetails, int, error)
	deleteFn  func(ctx context.Context, id int64) error
	countFn   func(ctx context.Context, f domain.LoanFilter) (int, error)
	overdueFn func(ctx context.Context, now time.Time) ([]domain.UserRef, error)
}

func (m *mockLoanRepo) GetLoan(ctx context.Context, id int64) (*domain.LoanDetails, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, domain.NewNotFound("loan", id)
}

func (m *mockLoanRepo) ListLoans(ctx context.Context, f domain.LoanFilter, p domain.Page) ([]domain.LoanDetails, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f, p)
	}
	return nil, 0, nil
}

func (m *mockLoanRepo) DeleteLoan(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockLoanRepo) CountLoans(ctx context.Context, f domain.LoanFilter) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, f)
	}
	return 0, nil
}

func (m *mockLoanRepo) OverdueBorrowers(ctx context.Context, now time.Time) ([]domain.UserRef, error) {
	if m.overdueFn != nil {
		return m.overdueFn(ctx, now)
	}
	return nil, nil
}

// mockStore runs transactions against mockTx and counts how often it was
// entered.
type mockStore struct {
	tx    *mockTx
	calls int
}

func (m *mockStore) WithinTx(ctx context.Context, fn func(tx domain.LendingTx) error) error {
	m.calls++
	if m.tx == nil {
		m.tx = &mockTx{}
	}
	return fn(m.tx)
}

type mockTx struct {
	lockBookFn   func(ctx context.Context, id int64) (*domain.Book, error)
	activeFn     func(ctx context.Context, bookID int64) (int, error)
	hasActiveFn  func(ctx context.Context, userID, bookID int64) (bool, error)
	insertFn     func(ctx context.Context, l *domain.Loan) error
	lockLoanFn   func(ctx context.Context, id int64) (*domain.Loan, error)
	saveReturnFn func(ctx context.Context, l *domain.Loan) error
}

func (m *mockTx) LockBook(ctx context.Context, id int64) (*domain.Book, error) {
	if m.lockBookFn != nil {
		return m.lockBookFn(ctx, id)
	}
	return nil, domain.NewNotFound("book", id)
}

func (m *mockTx) ActiveLoanCount(ctx context.Context, bookID int64) (int, error) {
	if m.activeFn != nil {
		return m.activeFn(ctx, bookID)
	}
	return 0, nil
}

func (m *mockTx) HasActiveLoan(ctx context.Context, userID, bookID int64) (bool, error) {
	if m.hasActiveFn != nil {
		return m.hasActiveFn(ctx, userID, bookID)
	}
	return false, nil
}

func (m *mockTx) InsertLoan(ctx context.Context, l *domain.Loan) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, l)
	}
	l.ID = 1
	return nil
}

func (m *mockTx) LockLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	if m.lockLoanFn != nil {
		return m.lockLoanFn(ctx, id)
	}
	return nil, domain.NewNotFound("loan", id)
}

func (m *mockTx) SaveReturn(ctx context.Context, l *domain.Loan) error {
	if m.saveReturnFn != nil {
		return m.saveReturnFn(ctx, l)
	}
	return nil
}

var (
	librarian = &domain.Actor{UserID: 1, Role: domain.RoleLibrarian}
	member    = &domain.Actor{UserID: 2, Role: domain.RoleMember}
	otherUser = &domain.Actor{UserID: 3, Role: domain.RoleMember}
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
