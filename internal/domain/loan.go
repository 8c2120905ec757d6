package domain

import (
	"context"
	"fmt"
	"time"
)

// LoanPeriod is the fixed lending period. The due date is set once at
// creation and never recomputed.
const LoanPeriod = 14 * 24 * time.Hour

// LoanStatus is the state of a loan: borrowed (initial) or returned (terminal).
type LoanStatus string

const (
	LoanBorrowed LoanStatus = "borrowed"
	LoanReturned LoanStatus = "returned"
)

// ParseLoanStatus validates a status string.
func ParseLoanStatus(s string) (LoanStatus, error) {
	switch st := LoanStatus(s); st {
	case LoanBorrowed, LoanReturned:
		return st, nil
	}
	return "", fmt.Errorf("unknown loan status %q", s)
}

// Loan is one borrowing transaction.
type Loan struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	BookID     int64      `json:"book_id"`
	Status     LoanStatus `json:"status"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueDate    time.Time  `json:"due_date"`
	ReturnedAt *time.Time `json:"returned_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewLoan builds an active loan borrowed at now.
func NewLoan(userID, bookID int64, now time.Time) Loan {
	return Loan{
		UserID:     userID,
		BookID:     bookID,
		Status:     LoanBorrowed,
		BorrowedAt: now,
		DueDate:    now.Add(LoanPeriod),
		CreatedAt:  now,
	}
}

// Active reports whether the loan is still borrowed.
func (l Loan) Active() bool {
	return l.Status == LoanBorrowed
}

// Return performs the only permitted mutation of a loan.
func (l *Loan) Return(now time.Time) error {
	if l.Status != LoanBorrowed {
		return ErrAlreadyReturned
	}
	l.Status = LoanReturned
	l.ReturnedAt = &now
	return nil
}

// Check verifies the temporal and status invariants of l.
func (l Loan) Check() error {
	if !l.DueDate.After(l.BorrowedAt) {
		return fmt.Errorf("loan %d: due date must be after borrowed date", l.ID)
	}
	if (l.Status == LoanReturned) != (l.ReturnedAt != nil) {
		return fmt.Errorf("loan %d: returned_at must be set exactly when returned", l.ID)
	}
	return nil
}

// IsOverdue reports borrowed && due date < now.
func (l Loan) IsOverdue(now time.Time) bool {
	return l.Status == LoanBorrowed && l.DueDate.Before(now)
}

// DaysOverdue counts calendar days from the due date to now, both taken in
// now's location. A loan overdue by a few hours on its due day reports 0.
func (l Loan) DaysOverdue(now time.Time) int {
	if !l.IsOverdue(now) {
		return 0
	}
	return calendarDays(l.DueDate, now, now.Location())
}

// DaysUntilDue counts calendar days from now to the due date, in now's
// location, or 0 once the loan is returned. It goes negative for overdue loans.
func (l Loan) DaysUntilDue(now time.Time) int {
	if l.Status != LoanBorrowed {
		return 0
	}
	return calendarDays(now, l.DueDate, now.Location())
}

// IsDueOn reports whether an active loan falls due on day's calendar date.
func (l Loan) IsDueOn(day time.Time) bool {
	if l.Status != LoanBorrowed {
		return false
	}
	start := StartOfDay(day)
	return !l.DueDate.Before(start) && l.DueDate.Before(start.AddDate(0, 0, 1))
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// calendarDays is the whole-day difference between the dates of from and to,
// both read in loc.
func calendarDays(from, to time.Time, loc *time.Location) int {
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.In(loc).Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// LoanPatch is the body of a general loan update. Only {status: returned}
// is accepted; Other names any further fields the caller tried to set.
type LoanPatch struct {
	Status string
	Other  []string
}

// Validate rejects every patch that is not a plain return.
func (p LoanPatch) Validate() error {
	if len(p.Other) > 0 {
		return fmt.Errorf("%w: cannot modify %v", ErrInvalidTransition, p.Other)
	}
	if LoanStatus(p.Status) != LoanReturned {
		return ErrInvalidTransition
	}
	return nil
}

// UserRef is the borrower summary embedded in loan listings.
type UserRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// BookRef is the book summary embedded in loan listings.
type BookRef struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN   string `json:"isbn"`
}

// LoanDetails is a loan joined with its borrower and book.
type LoanDetails struct {
	Loan
	User UserRef `json:"user"`
	Book BookRef `json:"book"`
}

// LoanRepository is the port for loan reads and administrative deletes.
type LoanRepository interface {
	// GetLoan returns a NotFoundError when no loan has id.
	GetLoan(ctx context.Context, id int64) (*LoanDetails, error)
	ListLoans(ctx context.Context, f LoanFilter, p Page) ([]LoanDetails, int, error)
	DeleteLoan(ctx context.Context, id int64) error
	CountLoans(ctx context.Context, f LoanFilter) (int, error)
	// OverdueBorrowers lists users holding at least one overdue loan.
	OverdueBorrowers(ctx context.Context, now time.Time) ([]UserRef, error)
}

// LendingTx is the view of the store inside one lending transaction.
type LendingTx interface {
	// LockBook reads the book and holds it against concurrent borrows.
	LockBook(ctx context.Context, id int64) (*Book, error)
	// ActiveLoanCount counts borrowed loans of bookID.
	ActiveLoanCount(ctx context.Context, bookID int64) (int, error)
	HasActiveLoan(ctx context.Context, userID, bookID int64) (bool, error)
	// InsertLoan stores l and sets its ID. A second active loan for the same
	// (user, book) is rejected with ErrConstraintConflict.
	InsertLoan(ctx context.Context, l *Loan) error
	LockLoan(ctx context.Context, id int64) (*Loan, error)
	SaveReturn(ctx context.Context, l *Loan) error
}

// LendingStore runs fn atomically: either every write of fn is applied or none.
type LendingStore interface {
	WithinTx(ctx context.Context, fn func(tx LendingTx) error) error
}
