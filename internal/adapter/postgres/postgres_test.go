package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"lending/internal/domain"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, translate(plain))

	dup := &pq.Error{Code: uniqueViolation, Constraint: "books_isbn_key"}
	err := translate(fmt.Errorf("insert: %w", dup))
	assert.ErrorIs(t, err, domain.ErrConstraintConflict)
	assert.Contains(t, err.Error(), "books_isbn_key")

	check := &pq.Error{Code: "23514", Constraint: "loans_due_after_borrowed"}
	assert.NotErrorIs(t, translate(check), domain.ErrConstraintConflict)
}

func TestSchemaHasActiveLoanIndex(t *testing.T) {
	var found bool
	for _, stmt := range schema {
		if strings.Contains(stmt, "UNIQUE INDEX") && strings.Contains(stmt, "loans_one_active_per_user_book") {
			assert.Contains(t, stmt, "WHERE status = 'borrowed'")
			found = true
		}
	}
	assert.True(t, found, "partial unique index on active loans")
}
