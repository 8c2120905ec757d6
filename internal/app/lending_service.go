package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lending/internal/domain"
)

// Recorder observes lending outcomes. The metrics adapter implements it.
type Recorder interface {
	LendingOutcome(op, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) LendingOutcome(string, string) {}

// LoanView is a loan with its borrower, its book and the figures derived
// from the current time.
type LoanView struct {
	domain.LoanDetails
	Overdue      bool `json:"overdue"`
	DaysOverdue  int  `json:"days_overdue"`
	DaysUntilDue int  `json:"days_until_due"`
}

// NewLoanView derives the view of d as of now.
func NewLoanView(d domain.LoanDetails, now time.Time) LoanView {
	return LoanView{
		LoanDetails:  d,
		Overdue:      d.IsOverdue(now),
		DaysOverdue:  d.DaysOverdue(now),
		DaysUntilDue: d.DaysUntilDue(now),
	}
}

// LoanPage is one page of a loan listing.
type LoanPage struct {
	Loans      []LoanView        `json:"loans"`
	Pagination domain.Pagination `json:"pagination"`
}

// LendingService runs the loan lifecycle: borrow, return and the
// administrative reads and deletes around it.
type LendingService struct {
	store    domain.LendingStore
	loans    domain.LoanRepository
	now      func() time.Time
	recorder Recorder
	logger   *slog.Logger
}

// NewLendingService creates a LendingService. store provides the
// transactional view used for borrow and return; loans serves reads.
func NewLendingService(store domain.LendingStore, loans domain.LoanRepository, logger *slog.Logger) *LendingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LendingService{
		store:    store,
		loans:    loans,
		now:      time.Now,
		recorder: nopRecorder{},
		logger:   logger,
	}
}

// WithClock replaces the time source. Due dates and overdue figures are
// computed from it.
func (s *LendingService) WithClock(now func() time.Time) *LendingService {
	s.now = now
	return s
}

// WithRecorder installs an outcome recorder.
func (s *LendingService) WithRecorder(r Recorder) *LendingService {
	if r != nil {
		s.recorder = r
	}
	return s
}

// BorrowBook lends one copy of bookID to the actor. It fails with
// ErrCannotBorrow when no copy is available or the actor already holds an
// active loan of the book; the two cases are reported identically.
func (s *LendingService) BorrowBook(ctx context.Context, actor *domain.Actor, bookID int64) (*LoanView, error) {
	if err := domain.Authorize(actor, domain.ActionCreateLoan, 0); err != nil {
		s.recorder.LendingOutcome("borrow", outcome(err))
		return nil, err
	}

	now := s.now()
	loan := domain.NewLoan(actor.UserID, bookID, now)
	err := s.store.WithinTx(ctx, func(tx domain.LendingTx) error {
		book, err := tx.LockBook(ctx, bookID)
		if err != nil {
			return err
		}
		active, err := tx.ActiveLoanCount(ctx, book.ID)
		if err != nil {
			return err
		}
		if domain.AvailableCopies(book.TotalCopies, active) == 0 {
			return domain.ErrCannotBorrow
		}
		held, err := tx.HasActiveLoan(ctx, actor.UserID, book.ID)
		if err != nil {
			return err
		}
		if held {
			return domain.ErrCannotBorrow
		}
		return tx.InsertLoan(ctx, &loan)
	})
	if errors.Is(err, domain.ErrConstraintConflict) {
		s.logger.WarnContext(ctx, "concurrent borrow rejected by store", "book_id", bookID, "user_id", actor.UserID)
		err = domain.ErrCannotBorrow
	}
	s.recorder.LendingOutcome("borrow", outcome(err))
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "book borrowed", "loan_id", loan.ID, "book_id", bookID, "user_id", actor.UserID, "due", loan.DueDate)
	return s.view(ctx, loan.ID)
}

// ReturnLoan marks an active loan returned. Members may only return their own
// loans.
func (s *LendingService) ReturnLoan(ctx context.Context, actor *domain.Actor, loanID int64) (*LoanView, error) {
	if actor == nil {
		s.recorder.LendingOutcome("return", outcome(domain.ErrUnauthenticated))
		return nil, domain.ErrUnauthenticated
	}

	err := s.store.WithinTx(ctx, func(tx domain.LendingTx) error {
		loan, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := domain.Authorize(actor, domain.ActionReturnLoan, loan.UserID); err != nil {
			return err
		}
		if err := loan.Return(s.now()); err != nil {
			return err
		}
		return tx.SaveReturn(ctx, loan)
	})
	s.recorder.LendingOutcome("return", outcome(err))
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "book returned", "loan_id", loanID, "actor", actor.UserID)
	return s.view(ctx, loanID)
}

// UpdateLoan is the general update pathway. The only accepted change is
// {status: returned}; everything else fails with ErrInvalidTransition.
func (s *LendingService) UpdateLoan(ctx context.Context, actor *domain.Actor, loanID int64, patch domain.LoanPatch) (*LoanView, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}
	current, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := domain.Authorize(actor, domain.ActionReturnLoan, current.UserID); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return s.ReturnLoan(ctx, actor, loanID)
}

// GetLoan returns one loan the actor may see.
func (s *LendingService) GetLoan(ctx context.Context, actor *domain.Actor, loanID int64) (*LoanView, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}
	d, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := domain.Authorize(actor, domain.ActionViewLoan, d.UserID); err != nil {
		return nil, err
	}
	v := NewLoanView(*d, s.now())
	return &v, nil
}

// DeleteLoan removes a loan record outright.
func (s *LendingService) DeleteLoan(ctx context.Context, actor *domain.Actor, loanID int64) error {
	if actor == nil {
		return domain.ErrUnauthenticated
	}
	d, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return err
	}
	if err := domain.Authorize(actor, domain.ActionDeleteLoan, d.UserID); err != nil {
		return err
	}
	if err := s.loans.DeleteLoan(ctx, loanID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "loan deleted", "loan_id", loanID, "actor", actor.UserID)
	return nil
}

// ListLoans returns the loans visible to the actor that match f, newest
// first. Members only ever see their own loans.
func (s *LendingService) ListLoans(ctx context.Context, actor *domain.Actor, f domain.LoanFilter, p domain.Page) (*LoanPage, error) {
	f, err := domain.VisibleLoanScope(actor, f)
	if err != nil {
		return nil, err
	}
	now := s.now()
	f.Now = now
	loans, total, err := s.loans.ListLoans(ctx, f, p)
	if err != nil {
		return nil, err
	}
	return newLoanPage(loans, p, total, now), nil
}

func (s *LendingService) view(ctx context.Context, loanID int64) (*LoanView, error) {
	d, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	v := NewLoanView(*d, s.now())
	return &v, nil
}

func newLoanPage(loans []domain.LoanDetails, p domain.Page, total int, now time.Time) *LoanPage {
	return &LoanPage{Loans: views(loans, now), Pagination: domain.NewPagination(p, total)}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrCannotBorrow):
		return "cannot_borrow"
	case errors.Is(err, domain.ErrAlreadyReturned):
		return "already_returned"
	case errors.Is(err, domain.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	}
	return "error"
}
