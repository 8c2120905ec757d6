package app

import (
	"context"
	"fmt"
	"time"

	"lending/internal/domain"
)

const (
	librarianRecentLoans = 10
	memberRecentLoans    = 5
)

// LibrarianSummary is the library-wide dashboard.
type LibrarianSummary struct {
	TotalBooks     int              `json:"total_books"`
	AvailableBooks int              `json:"available_books"`
	TotalBorrowed  int              `json:"total_borrowed"`
	DueToday       int              `json:"due_today"`
	Overdue        int              `json:"overdue"`
	TotalMembers   int              `json:"total_members"`
	OverdueMembers []domain.UserRef `json:"overdue_members"`
	RecentLoans    []LoanView       `json:"recent_loans"`
}

// MemberSummary is a member's view of their own borrowing.
type MemberSummary struct {
	CurrentLoans      []LoanView `json:"current_loans"`
	OverdueLoans      []LoanView `json:"overdue_loans"`
	DueToday          []LoanView `json:"due_today"`
	RecentLoans       []LoanView `json:"recent_loans"`
	TotalBorrowed     int        `json:"total_borrowed"`
	CurrentlyBorrowed int        `json:"currently_borrowed"`
}

// Dashboard holds exactly one of the two summaries, chosen by role.
type Dashboard struct {
	Role      domain.Role       `json:"role"`
	Librarian *LibrarianSummary `json:"librarian,omitempty"`
	Member    *MemberSummary    `json:"member,omitempty"`
}

// DashboardService aggregates loan and catalog counts for the home page.
type DashboardService struct {
	books domain.BookRepository
	loans domain.LoanRepository
	users domain.UserRepository
	now   func() time.Time
}

// NewDashboardService creates a DashboardService.
func NewDashboardService(books domain.BookRepository, loans domain.LoanRepository, users domain.UserRepository) *DashboardService {
	return &DashboardService{books: books, loans: loans, users: users, now: time.Now}
}

// WithClock replaces the time source used for overdue and due-today counts.
func (s *DashboardService) WithClock(now func() time.Time) *DashboardService {
	s.now = now
	return s
}

// Summary builds the dashboard for actor.
func (s *DashboardService) Summary(ctx context.Context, actor *domain.Actor) (*Dashboard, error) {
	if err := domain.Authorize(actor, domain.ActionViewDashboard, 0); err != nil {
		return nil, err
	}
	now := s.now()
	switch actor.Role {
	case domain.RoleLibrarian:
		sum, err := s.librarian(ctx, now)
		if err != nil {
			return nil, err
		}
		return &Dashboard{Role: actor.Role, Librarian: sum}, nil
	case domain.RoleMember:
		sum, err := s.member(ctx, actor.UserID, now)
		if err != nil {
			return nil, err
		}
		return &Dashboard{Role: actor.Role, Member: sum}, nil
	}
	return nil, domain.ErrForbidden
}

func (s *DashboardService) librarian(ctx context.Context, now time.Time) (*LibrarianSummary, error) {
	var (
		sum LibrarianSummary
		err error
	)
	if sum.TotalBooks, err = s.books.CountBooks(ctx); err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}
	if _, sum.AvailableBooks, err = s.books.ListBooks(ctx, domain.BookFilter{AvailableOnly: true}, domain.NewPage(1, 1)); err != nil {
		return nil, fmt.Errorf("count available books: %w", err)
	}
	if sum.TotalBorrowed, err = s.loans.CountLoans(ctx, domain.LoanFilter{Status: domain.LoanBorrowed, Now: now}); err != nil {
		return nil, fmt.Errorf("count borrowed: %w", err)
	}
	if sum.DueToday, err = s.loans.CountLoans(ctx, domain.LoanFilter{DueToday: true, Now: now}); err != nil {
		return nil, fmt.Errorf("count due today: %w", err)
	}
	if sum.Overdue, err = s.loans.CountLoans(ctx, domain.LoanFilter{Overdue: true, Now: now}); err != nil {
		return nil, fmt.Errorf("count overdue: %w", err)
	}
	if sum.TotalMembers, err = s.users.CountByRole(ctx, domain.RoleMember); err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	if sum.OverdueMembers, err = s.loans.OverdueBorrowers(ctx, now); err != nil {
		return nil, fmt.Errorf("overdue borrowers: %w", err)
	}
	if sum.OverdueMembers == nil {
		sum.OverdueMembers = []domain.UserRef{}
	}
	recent, _, err := s.loans.ListLoans(ctx, domain.LoanFilter{Now: now}, domain.NewPage(1, librarianRecentLoans))
	if err != nil {
		return nil, fmt.Errorf("recent loans: %w", err)
	}
	sum.RecentLoans = views(recent, now)
	return &sum, nil
}

func (s *DashboardService) member(ctx context.Context, userID int64, now time.Time) (*MemberSummary, error) {
	all := domain.NewPage(1, domain.MaxPerPage)
	list := func(f domain.LoanFilter, p domain.Page) ([]LoanView, error) {
		f.UserID = userID
		f.Now = now
		loans, _, err := s.loans.ListLoans(ctx, f, p)
		if err != nil {
			return nil, err
		}
		return views(loans, now), nil
	}

	var (
		sum MemberSummary
		err error
	)
	if sum.CurrentLoans, err = list(domain.LoanFilter{Status: domain.LoanBorrowed}, all); err != nil {
		return nil, fmt.Errorf("current loans: %w", err)
	}
	if sum.OverdueLoans, err = list(domain.LoanFilter{Overdue: true}, all); err != nil {
		return nil, fmt.Errorf("overdue loans: %w", err)
	}
	if sum.DueToday, err = list(domain.LoanFilter{DueToday: true}, all); err != nil {
		return nil, fmt.Errorf("due today: %w", err)
	}
	if sum.RecentLoans, err = list(domain.LoanFilter{}, domain.NewPage(1, memberRecentLoans)); err != nil {
		return nil, fmt.Errorf("recent loans: %w", err)
	}
	if sum.TotalBorrowed, err = s.loans.CountLoans(ctx, domain.LoanFilter{UserID: userID, Now: now}); err != nil {
		return nil, fmt.Errorf("count loans: %w", err)
	}
	if sum.CurrentlyBorrowed, err = s.loans.CountLoans(ctx, domain.LoanFilter{UserID: userID, Status: domain.LoanBorrowed, Now: now}); err != nil {
		return nil, fmt.Errorf("count borrowed: %w", err)
	}
	return &sum, nil
}

func views(loans []domain.LoanDetails, now time.Time) []LoanView {
	out := make([]LoanView, 0, len(loans))
	for _, l := range loans {
		out = append(out, NewLoanView(l, now))
	}
	return out
}
