package domain

import (
	"math"
	"strings"
	"time"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
	// MaxPageNumber keeps (page-1)*perPage within int.
	MaxPageNumber = math.MaxInt / MaxPerPage
)

// Page selects a 1-based page of a listing.
type Page struct {
	Number  int
	PerPage int
}

// NewPage normalizes page and perPage: page defaults to 1 and is capped at
// MaxPageNumber, perPage defaults to DefaultPerPage and is capped at MaxPerPage.
func NewPage(page, perPage int) Page {
	if page < 1 {
		page = 1
	}
	if page > MaxPageNumber {
		page = MaxPageNumber
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Page{Number: page, PerPage: perPage}
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// Bounds clamps the page to a slice of length n.
func (p Page) Bounds(n int) (int, int) {
	start := p.Offset()
	if start < 0 || start > n {
		start = n
	}
	end := start + p.PerPage
	if end > n {
		end = n
	}
	return start, end
}

// Pagination is the metadata returned alongside a page.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	TotalCount  int `json:"total_count"`
	TotalPages  int `json:"total_pages"`
}

// NewPagination computes pagination metadata from a page and a total count.
func NewPagination(p Page, total int) Pagination {
	pages := 0
	if p.PerPage > 0 {
		pages = (total + p.PerPage - 1) / p.PerPage
	}
	return Pagination{CurrentPage: p.Number, PerPage: p.PerPage, TotalCount: total, TotalPages: pages}
}

// BookFilter narrows a catalog listing. Empty fields do not filter.
type BookFilter struct {
	// Search matches title or author, case-insensitive substring.
	Search string
	// Genre matches exactly.
	Genre string
	// Author matches case-insensitive substring.
	Author        string
	AvailableOnly bool
}

// Matches evaluates the filter against a book and its active-loan count.
func (f BookFilter) Matches(b BookWithLoans) bool {
	if f.Search != "" && !containsFold(b.Title, f.Search) && !containsFold(b.Author, f.Search) {
		return false
	}
	if f.Genre != "" && b.Genre != f.Genre {
		return false
	}
	if f.Author != "" && !containsFold(b.Author, f.Author) {
		return false
	}
	if f.AvailableOnly && !b.Availability().Available {
		return false
	}
	return true
}

// LoanFilter narrows a loan listing. Zero fields do not filter.
type LoanFilter struct {
	UserID   int64
	BookID   int64
	Status   LoanStatus
	Overdue  bool
	DueToday bool
	// Now is the reference time for Overdue and DueToday.
	Now time.Time
}

// Matches evaluates the filter against a loan.
func (f LoanFilter) Matches(l Loan) bool {
	if f.UserID != 0 && l.UserID != f.UserID {
		return false
	}
	if f.BookID != 0 && l.BookID != f.BookID {
		return false
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.Overdue && !l.IsOverdue(f.Now) {
		return false
	}
	if f.DueToday && !l.IsDueOn(f.Now) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
