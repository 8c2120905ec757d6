package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"lending/internal/app"
	"lending/internal/domain"
)

var borrowedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type outcomeLog struct{ got []string }

func (o *outcomeLog) LendingOutcome(op, outcome string) { o.got = append(o.got, op+":"+outcome) }

func loanRepoFor(l *domain.Loan) *mockLoanRepo {
	return &mockLoanRepo{
		getFn: func(_ context.Context, id int64) (*domain.LoanDetails, error) {
			if l == nil || id != l.ID {
				return nil, domain.NewNotFound("loan", id)
			}
			return &domain.LoanDetails{Loan: *l}, nil
		},
	}
}

func TestBorrowBook_UnauthenticatedTouchesNothing(t *testing.T) {
	store := &mockStore{}
	rec := &outcomeLog{}
	svc := app.NewLendingService(store, &mockLoanRepo{}, nil).WithRecorder(rec)

	_, err := svc.BorrowBook(context.Background(), nil, 1)
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("store must not be read, got %d transactions", store.calls)
	}
	if len(rec.got) != 1 || rec.got[0] != "borrow:unauthenticated" {
		t.Errorf("unexpected outcomes %v", rec.got)
	}
}

func TestBorrowBook_Success(t *testing.T) {
	var inserted *domain.Loan
	store := &mockStore{tx: &mockTx{
		lockBookFn: func(_ context.Context, id int64) (*domain.Book, error) {
			return &domain.Book{ID: id, TotalCopies: 1}, nil
		},
		insertFn: func(_ context.Context, l *domain.Loan) error {
			l.ID = 9
			inserted = l
			return nil
		},
	}}
	loans := &mockLoanRepo{
		getFn: func(_ context.Context, id int64) (*domain.LoanDetails, error) {
			return &domain.LoanDetails{Loan: *inserted}, nil
		},
	}
	svc := app.NewLendingService(store, loans, nil).WithClock(fixedClock(borrowedAt))

	v, err := svc.BorrowBook(context.Background(), member, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ID != 9 || v.UserID != member.UserID || v.BookID != 4 {
		t.Errorf("unexpected loan %+v", v.Loan)
	}
	if got := v.DueDate.Sub(v.BorrowedAt); got != 14*24*time.Hour {
		t.Errorf("expected 14 day period, got %v", got)
	}
	if v.DaysUntilDue != 14 || v.Overdue {
		t.Errorf("unexpected derived fields %+v", v)
	}
}

func TestBorrowBook_Failures(t *testing.T) {
	tests := []struct {
		name   string
		tx     *mockTx
		want   error
		actor  *domain.Actor
		record string
	}{
		{
			name:   "missing book",
			tx:     &mockTx{},
			want:   domain.ErrNotFound,
			actor:  member,
			record: "borrow:not_found",
		},
		{
			name: "no copies left",
			tx: &mockTx{
				lockBookFn: func(_ context.Context, id int64) (*domain.Book, error) { return &domain.Book{ID: id, TotalCopies: 2}, nil },
				activeFn:   func(_ context.Context, _ int64) (int, error) { return 2, nil },
			},
			want:   domain.ErrCannotBorrow,
			actor:  member,
			record: "borrow:cannot_borrow",
		},
		{
			name: "already holding a copy",
			tx: &mockTx{
				lockBookFn:  func(_ context.Context, id int64) (*domain.Book, error) { return &domain.Book{ID: id, TotalCopies: 5}, nil },
				hasActiveFn: func(_ context.Context, _, _ int64) (bool, error) { return true, nil },
			},
			want:   domain.ErrCannotBorrow,
			actor:  librarian,
			record: "borrow:cannot_borrow",
		},
		{
			name: "store uniqueness conflict",
			tx: &mockTx{
				lockBookFn: func(_ context.Context, id int64) (*domain.Book, error) { return &domain.Book{ID: id, TotalCopies: 5}, nil },
				insertFn:   func(_ context.Context, _ *domain.Loan) error { return domain.ErrConstraintConflict },
			},
			want:   domain.ErrCannotBorrow,
			actor:  member,
			record: "borrow:cannot_borrow",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &outcomeLog{}
			svc := app.NewLendingService(&mockStore{tx: tc.tx}, &mockLoanRepo{}, nil).WithRecorder(rec)
			_, err := svc.BorrowBook(context.Background(), tc.actor, 1)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if errors.Is(err, domain.ErrConstraintConflict) {
				t.Fatal("constraint conflict must not escape")
			}
			if len(rec.got) != 1 || rec.got[0] != tc.record {
				t.Errorf("expected outcome %s, got %v", tc.record, rec.got)
			}
		})
	}
}

func TestReturnLoan(t *testing.T) {
	newTx := func(l *domain.Loan, saved *bool) *mockTx {
		return &mockTx{
			lockLoanFn: func(_ context.Context, id int64) (*domain.Loan, error) {
				cp := *l
				return &cp, nil
			},
			saveReturnFn: func(_ context.Context, got *domain.Loan) error {
				*saved = true
				*l = *got
				return nil
			},
		}
	}

	t.Run("owner returns", func(t *testing.T) {
		l := domain.NewLoan(member.UserID, 4, borrowedAt)
		l.ID = 3
		saved := false
		returnedAt := borrowedAt.Add(48 * time.Hour)
		svc := app.NewLendingService(&mockStore{tx: newTx(&l, &saved)}, loanRepoFor(&l), nil).WithClock(fixedClock(returnedAt))

		v, err := svc.ReturnLoan(context.Background(), member, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !saved || v.Status != domain.LoanReturned || v.ReturnedAt == nil || !v.ReturnedAt.Equal(returnedAt) {
			t.Errorf("unexpected result %+v", v.Loan)
		}
		if v.DaysUntilDue != 0 || v.Overdue {
			t.Errorf("returned loan must not report due figures: %+v", v)
		}
	})

	t.Run("other member forbidden", func(t *testing.T) {
		l := domain.NewLoan(member.UserID, 4, borrowedAt)
		saved := false
		svc := app.NewLendingService(&mockStore{tx: newTx(&l, &saved)}, loanRepoFor(&l), nil)

		_, err := svc.ReturnLoan(context.Background(), otherUser, l.ID)
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if saved {
			t.Fatal("forbidden return must not write")
		}
	})

	t.Run("librarian returns anyone's", func(t *testing.T) {
		l := domain.NewLoan(member.UserID, 4, borrowedAt)
		saved := false
		svc := app.NewLendingService(&mockStore{tx: newTx(&l, &saved)}, loanRepoFor(&l), nil)

		if _, err := svc.ReturnLoan(context.Background(), librarian, l.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("already returned", func(t *testing.T) {
		l := domain.NewLoan(member.UserID, 4, borrowedAt)
		_ = l.Return(borrowedAt.Add(time.Hour))
		saved := false
		svc := app.NewLendingService(&mockStore{tx: newTx(&l, &saved)}, loanRepoFor(&l), nil)

		_, err := svc.ReturnLoan(context.Background(), member, l.ID)
		if !errors.Is(err, domain.ErrAlreadyReturned) {
			t.Fatalf("expected ErrAlreadyReturned, got %v", err)
		}
		if saved {
			t.Fatal("second return must not write")
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		store := &mockStore{}
		svc := app.NewLendingService(store, &mockLoanRepo{}, nil)
		if _, err := svc.ReturnLoan(context.Background(), nil, 1); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
		if store.calls != 0 {
			t.Fatal("store must not be read")
		}
	})
}

func TestUpdateLoan_OnlyReturnAllowed(t *testing.T) {
	l := domain.NewLoan(member.UserID, 4, borrowedAt)
	l.ID = 5
	store := &mockStore{}
	svc := app.NewLendingService(store, loanRepoFor(&l), nil)

	_, err := svc.UpdateLoan(context.Background(), librarian, 5, domain.LoanPatch{Status: "returned", Other: []string{"due_date"}})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	_, err = svc.UpdateLoan(context.Background(), librarian, 5, domain.LoanPatch{Status: "borrowed"})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if store.calls != 0 {
		t.Fatal("rejected patches must not open a transaction")
	}
	_, err = svc.UpdateLoan(context.Background(), otherUser, 5, domain.LoanPatch{Status: "returned"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestGetAndDeleteLoan(t *testing.T) {
	l := domain.NewLoan(member.UserID, 4, borrowedAt)
	l.ID = 6
	deleted := false
	loans := loanRepoFor(&l)
	loans.deleteFn = func(_ context.Context, id int64) error {
		deleted = true
		return nil
	}
	svc := app.NewLendingService(&mockStore{}, loans, nil)
	ctx := context.Background()

	if _, err := svc.GetLoan(ctx, member, 6); err != nil {
		t.Fatalf("owner must see own loan: %v", err)
	}
	if _, err := svc.GetLoan(ctx, otherUser, 6); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.GetLoan(ctx, librarian, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := svc.DeleteLoan(ctx, otherUser, 6); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if deleted {
		t.Fatal("forbidden delete must not reach the store")
	}
	if err := svc.DeleteLoan(ctx, member, 6); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete")
	}
}

func TestListLoans_MemberScopedBeforeFiltering(t *testing.T) {
	var seen domain.LoanFilter
	loans := &mockLoanRepo{
		listFn: func(_ context.Context, f domain.LoanFilter, p domain.Page) ([]domain.LoanDetails, int, error) {
			seen = f
			return nil, 0, nil
		},
	}
	now := borrowedAt.Add(30 * 24 * time.Hour)
	svc := app.NewLendingService(&mockStore{}, loans, nil).WithClock(fixedClock(now))

	page, err := svc.ListLoans(context.Background(), member, domain.LoanFilter{UserID: otherUser.UserID, Overdue: true}, domain.NewPage(1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.UserID != member.UserID || !seen.Overdue || !seen.Now.Equal(now) {
		t.Errorf("unexpected filter %+v", seen)
	}
	if page.Loans == nil {
		t.Error("expected empty, non-nil list")
	}

	if _, err := svc.ListLoans(context.Background(), nil, domain.LoanFilter{}, domain.NewPage(1, 10)); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
