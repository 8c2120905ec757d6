package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lending/internal/domain"
)

// WithinTx runs fn in a read-committed transaction. Row locks taken by
// LockBook and LockLoan serialize competing borrows and returns; the partial
// unique index on active loans backs the one-copy-per-member rule.
func (d *DB) WithinTx(ctx context.Context, fn func(tx domain.LendingTx) error) error {
	sqlTx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&lendingTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

type lendingTx struct {
	tx *sql.Tx
}

func (t *lendingTx) LockBook(ctx context.Context, id int64) (*domain.Book, error) {
	b, err := scanBook(t.tx.QueryRowContext(ctx,
		"SELECT "+bookColumns+" FROM books WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("book", id)
	}
	return b, err
}

func (t *lendingTx) ActiveLoanCount(ctx context.Context, bookID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM loans WHERE book_id = $1 AND status = 'borrowed'", bookID,
	).Scan(&n)
	return n, err
}

func (t *lendingTx) HasActiveLoan(ctx context.Context, userID, bookID int64) (bool, error) {
	var held bool
	err := t.tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM loans WHERE user_id = $1 AND book_id = $2 AND status = 'borrowed')",
		userID, bookID,
	).Scan(&held)
	return held, err
}

func (t *lendingTx) InsertLoan(ctx context.Context, l *domain.Loan) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO loans (user_id, book_id, status, borrowed_at, due_date, returned_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		l.UserID, l.BookID, l.Status, l.BorrowedAt, l.DueDate, l.ReturnedAt, l.CreatedAt,
	).Scan(&l.ID)
	return translate(err)
}

func (t *lendingTx) LockLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	l, err := scanLoan(t.tx.QueryRowContext(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("loan", id)
	}
	return l, err
}

// SaveReturn writes a return; a loan already returned by a concurrent request
// leaves no row to update.
func (t *lendingTx) SaveReturn(ctx context.Context, l *domain.Loan) error {
	if err := l.Check(); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx,
		"UPDATE loans SET status = $2, returned_at = $3 WHERE id = $1 AND status = 'borrowed'",
		l.ID, l.Status, l.ReturnedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAlreadyReturned
	}
	return nil
}
