package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lending/internal/domain"
)

const loanColumns = "id, user_id, book_id, status, borrowed_at, due_date, returned_at, created_at"

func scanLoan(row scanner) (*domain.Loan, error) {
	var (
		l        domain.Loan
		returned sql.NullTime
	)
	if err := row.Scan(&l.ID, &l.UserID, &l.BookID, &l.Status, &l.BorrowedAt, &l.DueDate, &returned, &l.CreatedAt); err != nil {
		return nil, err
	}
	if returned.Valid {
		l.ReturnedAt = &returned.Time
	}
	return &l, nil
}

func scanLoanDetails(row scanner) (domain.LoanDetails, error) {
	var (
		d         domain.LoanDetails
		returned  sql.NullTime
		first     string
		last      string
		bookTitle string
	)
	err := row.Scan(
		&d.ID, &d.UserID, &d.BookID, &d.Status, &d.BorrowedAt, &d.DueDate, &returned, &d.CreatedAt,
		&first, &last, &d.User.Email,
		&bookTitle, &d.Book.Author, &d.Book.ISBN,
	)
	if err != nil {
		return d, err
	}
	if returned.Valid {
		d.ReturnedAt = &returned.Time
	}
	d.User.ID = d.UserID
	d.User.Name = domain.User{FirstName: first, LastName: last}.FullName()
	d.Book.ID = d.BookID
	d.Book.Title = bookTitle
	return d, nil
}

// GetLoan returns a loan joined with its borrower and book.
func (d *DB) GetLoan(ctx context.Context, id int64) (*domain.LoanDetails, error) {
	q, err := buildGetLoan(id)
	if err != nil {
		return nil, err
	}
	l, err := scanLoanDetails(d.sql.QueryRowContext(ctx, q.sql, q.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("loan", id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLoans returns one page of loans matching f, newest first, and the total
// number of matches.
func (d *DB) ListLoans(ctx context.Context, f domain.LoanFilter, p domain.Page) ([]domain.LoanDetails, int, error) {
	total, err := d.CountLoans(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	q, err := buildListLoans(f, p)
	if err != nil {
		return nil, 0, err
	}
	rows, err := d.sql.QueryContext(ctx, q.sql, q.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.LoanDetails, 0, p.PerPage)
	for rows.Next() {
		l, err := scanLoanDetails(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// DeleteLoan removes a loan record.
func (d *DB) DeleteLoan(ctx context.Context, id int64) error {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM loans WHERE id = $1", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewNotFound("loan", id)
	}
	return nil
}

// CountLoans counts loans matching f.
func (d *DB) CountLoans(ctx context.Context, f domain.LoanFilter) (int, error) {
	q, err := buildCountLoans(f)
	if err != nil {
		return 0, err
	}
	var n int
	err = d.sql.QueryRowContext(ctx, q.sql, q.args...).Scan(&n)
	return n, err
}

// OverdueBorrowers lists the distinct users holding an overdue loan, by ID.
func (d *DB) OverdueBorrowers(ctx context.Context, now time.Time) ([]domain.UserRef, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT DISTINCT u.id, u.first_name, u.last_name, u.email
		FROM loans l JOIN users u ON u.id = l.user_id
		WHERE l.status = 'borrowed' AND l.due_date < $1
		ORDER BY u.id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.UserRef
	for rows.Next() {
		var (
			ref         domain.UserRef
			first, last string
		)
		if err := rows.Scan(&ref.ID, &first, &last, &ref.Email); err != nil {
			return nil, err
		}
		ref.Name = domain.User{FirstName: first, LastName: last}.FullName()
		out = append(out, ref)
	}
	return out, rows.Err()
}
