package domain

import "fmt"

// Availability is the derived copy state of a book. It is computed from the
// current loan rows on every read and never stored.
type Availability struct {
	TotalCopies     int  `json:"total_copies"`
	BorrowedCopies  int  `json:"borrowed_copies"`
	AvailableCopies int  `json:"available_copies"`
	Available       bool `json:"available"`
}

// NewAvailability derives availability from total copies and the number of
// active loans.
func NewAvailability(totalCopies, activeLoans int) Availability {
	n := AvailableCopies(totalCopies, activeLoans)
	return Availability{
		TotalCopies:     totalCopies,
		BorrowedCopies:  activeLoans,
		AvailableCopies: n,
		Available:       n > 0,
	}
}

// AvailableCopies is max(total - active, 0).
func AvailableCopies(totalCopies, activeLoans int) int {
	if n := totalCopies - activeLoans; n > 0 {
		return n
	}
	return 0
}

// Status renders "N of M available" or "All copies borrowed".
func (a Availability) Status() string {
	if !a.Available {
		return "All copies borrowed"
	}
	return fmt.Sprintf("%d of %d available", a.AvailableCopies, a.TotalCopies)
}

// CountActive counts borrowed loans of bookID.
func CountActive(loans []Loan, bookID int64) int {
	n := 0
	for _, l := range loans {
		if l.BookID == bookID && l.Status == LoanBorrowed {
			n++
		}
	}
	return n
}
