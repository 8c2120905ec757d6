package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"lending/internal/domain"
)

func TestAvailableCopies(t *testing.T) {
	tests := []struct {
		name          string
		total, active int
		want          int
	}{
		{"unborrowed", 3, 0, 3},
		{"partly borrowed", 3, 2, 1},
		{"fully borrowed", 3, 3, 0},
		{"over-borrowed floors at zero", 1, 4, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.AvailableCopies(tc.total, tc.active)
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, 0)
		})
	}
}

func TestAvailabilityProperty(t *testing.T) {
	for total := 1; total <= 5; total++ {
		for active := 0; active <= 7; active++ {
			a := domain.NewAvailability(total, active)
			want := max(total-active, 0)
			assert.Equal(t, want, a.AvailableCopies, "total=%d active=%d", total, active)
			assert.Equal(t, active, a.BorrowedCopies)
			assert.Equal(t, want > 0, a.Available)
		}
	}
}

func TestAvailabilityStatus(t *testing.T) {
	assert.Equal(t, "2 of 3 available", domain.NewAvailability(3, 1).Status())
	assert.Equal(t, "All copies borrowed", domain.NewAvailability(2, 2).Status())
}

func TestCountActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	returned := domain.NewLoan(2, 1, now)
	_ = returned.Return(now)
	loans := []domain.Loan{
		domain.NewLoan(1, 1, now),
		returned,
		domain.NewLoan(3, 1, now),
		domain.NewLoan(1, 2, now),
	}
	assert.Equal(t, 2, domain.CountActive(loans, 1))
	assert.Equal(t, 1, domain.CountActive(loans, 2))
	assert.Equal(t, 0, domain.CountActive(loans, 9))
}

func TestSingleCopyScenario(t *testing.T) {
	b := domain.BookWithLoans{Book: domain.Book{ID: 1, TotalCopies: 1}}
	a := b.Availability()
	assert.Equal(t, 1, a.AvailableCopies)
	assert.True(t, a.Available)

	b.ActiveLoans = 1
	a = b.Availability()
	assert.Equal(t, 0, a.AvailableCopies)
	assert.False(t, a.Available)
}
