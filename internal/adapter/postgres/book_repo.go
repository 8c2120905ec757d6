package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lending/internal/domain"
)

const bookColumns = "id, title, author, genre, isbn, total_copies, created_at, updated_at"

func scanBook(row scanner) (*domain.Book, error) {
	var b domain.Book
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.ISBN, &b.TotalCopies, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBookWithLoans(row scanner) (domain.BookWithLoans, error) {
	var b domain.BookWithLoans
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.ISBN, &b.TotalCopies, &b.CreatedAt, &b.UpdatedAt, &b.ActiveLoans)
	return b, err
}

// CreateBook inserts a new book.
func (d *DB) CreateBook(ctx context.Context, in domain.BookInput, now time.Time) (*domain.Book, error) {
	b, err := scanBook(d.sql.QueryRowContext(ctx,
		"INSERT INTO books (title, author, genre, isbn, total_copies, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING "+bookColumns,
		in.Title, in.Author, in.Genre, in.ISBN, in.TotalCopies, now.UTC(),
	))
	if err != nil {
		return nil, translate(err)
	}
	return b, nil
}

// UpdateBook replaces the editable fields of a book.
func (d *DB) UpdateBook(ctx context.Context, id int64, in domain.BookInput, now time.Time) (*domain.Book, error) {
	b, err := scanBook(d.sql.QueryRowContext(ctx,
		"UPDATE books SET title = $2, author = $3, genre = $4, isbn = $5, total_copies = $6, updated_at = $7 WHERE id = $1 RETURNING "+bookColumns,
		id, in.Title, in.Author, in.Genre, in.ISBN, in.TotalCopies, now.UTC(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("book", id)
	}
	if err != nil {
		return nil, translate(err)
	}
	return b, nil
}

// DeleteBook removes a book; its loans go with it through ON DELETE CASCADE.
func (d *DB) DeleteBook(ctx context.Context, id int64) error {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM books WHERE id = $1", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewNotFound("book", id)
	}
	return nil
}

// GetBook returns a book with its active-loan count.
func (d *DB) GetBook(ctx context.Context, id int64) (*domain.BookWithLoans, error) {
	q, err := buildGetBook(id)
	if err != nil {
		return nil, err
	}
	b, err := scanBookWithLoans(d.sql.QueryRowContext(ctx, q.sql, q.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("book", id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ISBNTaken reports whether a book other than exceptID holds isbn.
func (d *DB) ISBNTaken(ctx context.Context, isbn string, exceptID int64) (bool, error) {
	var taken bool
	err := d.sql.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM books WHERE isbn = $1 AND id <> $2)", isbn, exceptID,
	).Scan(&taken)
	return taken, err
}

// ListBooks returns one page of books matching f, ordered by title, and the
// total number of matches.
func (d *DB) ListBooks(ctx context.Context, f domain.BookFilter, p domain.Page) ([]domain.BookWithLoans, int, error) {
	count, err := buildCountBooks(f)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := d.sql.QueryRowContext(ctx, count.sql, count.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q, err := buildListBooks(f, p)
	if err != nil {
		return nil, 0, err
	}
	rows, err := d.sql.QueryContext(ctx, q.sql, q.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.BookWithLoans, 0, p.PerPage)
	for rows.Next() {
		b, err := scanBookWithLoans(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// CountBooks returns the number of catalog entries.
func (d *DB) CountBooks(ctx context.Context) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM books").Scan(&n)
	return n, err
}
