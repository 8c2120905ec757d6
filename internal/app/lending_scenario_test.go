package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lending/internal/adapter/memory"
	"lending/internal/app"
	"lending/internal/domain"
)

type scenario struct {
	db      *memory.DB
	catalog *app.CatalogService
	lending *app.LendingService
	clock   time.Time
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	s := &scenario{db: memory.New(), clock: borrowedAt}
	now := func() time.Time { return s.clock }
	s.catalog = app.NewCatalogService(s.db, nil).WithClock(now)
	s.lending = app.NewLendingService(s.db, s.db, nil).WithClock(now)
	return s
}

func (s *scenario) user(t *testing.T, email string, role domain.Role) *domain.Actor {
	t.Helper()
	u, err := s.db.Create(context.Background(), domain.NewUser{Email: email, Role: role})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.Actor()
}

func (s *scenario) book(t *testing.T, isbn string, copies int) int64 {
	t.Helper()
	in := validBook()
	in.ISBN = isbn
	in.TotalCopies = copies
	v, err := s.catalog.CreateBook(context.Background(), librarian, in)
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	return v.ID
}

func TestScenario_SingleCopy(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()
	a := s.user(t, "a@example.com", domain.RoleMember)
	b := s.user(t, "b@example.com", domain.RoleMember)
	bookID := s.book(t, "9780547928227", 1)

	loan, err := s.lending.BorrowBook(ctx, a, bookID)
	if err != nil {
		t.Fatalf("A borrow: %v", err)
	}
	v, _ := s.catalog.GetBook(ctx, a, bookID)
	if v.AvailableCopies != 0 || v.Available {
		t.Fatalf("expected no copies left, got %+v", v)
	}

	if _, err := s.lending.BorrowBook(ctx, b, bookID); !errors.Is(err, domain.ErrCannotBorrow) {
		t.Fatalf("B borrow: expected ErrCannotBorrow, got %v", err)
	}
	if n, _ := s.db.CountLoans(ctx, domain.LoanFilter{}); n != 1 {
		t.Fatalf("failed borrow must not create a loan, have %d", n)
	}

	if _, err := s.lending.ReturnLoan(ctx, a, loan.ID); err != nil {
		t.Fatalf("A return: %v", err)
	}
	if _, err := s.lending.BorrowBook(ctx, b, bookID); err != nil {
		t.Fatalf("B borrow after return: %v", err)
	}
	if _, err := s.lending.ReturnLoan(ctx, a, loan.ID); !errors.Is(err, domain.ErrAlreadyReturned) {
		t.Fatalf("second return: expected ErrAlreadyReturned, got %v", err)
	}
}

func TestScenario_DoubleBorrowSameUser(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()
	a := s.user(t, "a@example.com", domain.RoleMember)
	bookID := s.book(t, "9780547928227", 3)

	if _, err := s.lending.BorrowBook(ctx, a, bookID); err != nil {
		t.Fatalf("first borrow: %v", err)
	}
	if _, err := s.lending.BorrowBook(ctx, a, bookID); !errors.Is(err, domain.ErrCannotBorrow) {
		t.Fatalf("expected ErrCannotBorrow, got %v", err)
	}
}

func TestScenario_ConcurrentBorrowsOneCopy(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()
	bookID := s.book(t, "9780547928227", 1)

	const n = 20
	actors := make([]*domain.Actor, n)
	for i := range actors {
		actors[i] = s.user(t, string(rune('a'+i))+"@example.com", domain.RoleMember)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for _, actor := range actors {
		wg.Add(1)
		go func(actor *domain.Actor) {
			defer wg.Done()
			_, err := s.lending.BorrowBook(ctx, actor, bookID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrCannotBorrow):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(actor)
	}
	wg.Wait()

	if successes != 1 || rejected != n-1 {
		t.Fatalf("expected exactly one success, got %d successes and %d rejections", successes, rejected)
	}
}

func TestScenario_ConcurrentBorrowsSameUser(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()
	a := s.user(t, "a@example.com", domain.RoleMember)
	bookID := s.book(t, "9780547928227", 10)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.lending.BorrowBook(ctx, a, bookID)
		}()
	}
	wg.Wait()

	n, _ := s.db.CountLoans(ctx, domain.LoanFilter{UserID: a.UserID, Status: domain.LoanBorrowed})
	if n != 1 {
		t.Fatalf("expected one active loan per user and book, got %d", n)
	}
}

func TestScenario_Overdue(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()
	a := s.user(t, "a@example.com", domain.RoleMember)
	bookID := s.book(t, "9780547928227", 1)

	loan, err := s.lending.BorrowBook(ctx, a, bookID)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}

	s.clock = borrowedAt.Add(20 * 24 * time.Hour)
	lib := s.user(t, "lib@example.com", domain.RoleLibrarian)
	page, err := s.lending.ListLoans(ctx, lib, domain.LoanFilter{Overdue: true}, domain.NewPage(1, 10))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Loans) != 1 || page.Loans[0].ID != loan.ID {
		t.Fatalf("expected the loan to be listed as overdue, got %+v", page.Loans)
	}
	if got := page.Loans[0].DaysOverdue; got != 6 {
		t.Errorf("expected 6 days overdue, got %d", got)
	}

	if _, err := s.lending.ReturnLoan(ctx, a, loan.ID); err != nil {
		t.Fatalf("return: %v", err)
	}
	page, _ = s.lending.ListLoans(ctx, lib, domain.LoanFilter{Overdue: true}, domain.NewPage(1, 10))
	if len(page.Loans) != 0 {
		t.Fatalf("returned loan must leave the overdue list, got %d", len(page.Loans))
	}
}

func TestScenario_MemberSeesOnlyOwnLoans(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()
	a := s.user(t, "a@example.com", domain.RoleMember)
	b := s.user(t, "b@example.com", domain.RoleMember)
	book1 := s.book(t, "9780547928227", 2)
	book2 := s.book(t, "9780441013593", 2)

	for _, actor := range []*domain.Actor{a, b} {
		for _, id := range []int64{book1, book2} {
			if _, err := s.lending.BorrowBook(ctx, actor, id); err != nil {
				t.Fatalf("borrow: %v", err)
			}
		}
	}

	page, err := s.lending.ListLoans(ctx, a, domain.LoanFilter{UserID: b.UserID}, domain.NewPage(1, 1))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.TotalCount != 2 || page.Pagination.TotalPages != 2 {
		t.Errorf("totals must reflect the scoped set, got %+v", page.Pagination)
	}
	for _, l := range page.Loans {
		if l.UserID != a.UserID {
			t.Fatalf("member saw loan of user %d", l.UserID)
		}
	}
}

func TestScenario_DuplicateISBNPersistsNothing(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()
	s.book(t, "9780547928227", 1)

	in := validBook()
	in.Title = "Another"
	_, err := s.catalog.CreateBook(ctx, librarian, in)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || !ve.HasField("isbn") {
		t.Fatalf("expected isbn ValidationError, got %v", err)
	}
	if n, _ := s.db.CountBooks(ctx); n != 1 {
		t.Fatalf("expected 1 book, got %d", n)
	}
}
