// Package postgres implements the domain repositories using PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"lending/internal/domain"
)

const uniqueViolation = "23505"

// DB wraps a *sql.DB and implements domain repository interfaces.
type DB struct {
	sql *sql.DB
}

// Ensure interfaces are met.
var _ domain.UserRepository = (*DB)(nil)
var _ domain.BookRepository = (*DB)(nil)
var _ domain.LoanRepository = (*DB)(nil)
var _ domain.LendingStore = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// Open connects to PostgreSQL, pings, and runs migrations.
func Open(connStr string) (*DB, error) {
	s, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	s.SetMaxOpenConns(10)
	s.SetMaxIdleConns(5)
	s.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.PingContext(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	d := &DB{sql: s}
	if err := d.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Ping checks that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL CHECK (role IN ('member', 'librarian')),
		password_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT users_email_key UNIQUE (email)
	);`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user_agent TEXT NOT NULL DEFAULT '',
		ip TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`,
	"CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);",
	`CREATE TABLE IF NOT EXISTS books (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		author VARCHAR(255) NOT NULL,
		genre VARCHAR(100) NOT NULL,
		isbn TEXT NOT NULL CHECK (char_length(isbn) = 13),
		total_copies INTEGER NOT NULL CHECK (total_copies > 0),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT books_isbn_key UNIQUE (isbn)
	);`,
	"CREATE INDEX IF NOT EXISTS idx_books_title ON books(title);",
	"CREATE INDEX IF NOT EXISTS idx_books_genre ON books(genre);",
	`CREATE TABLE IF NOT EXISTS loans (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		book_id BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		status TEXT NOT NULL CHECK (status IN ('borrowed', 'returned')),
		borrowed_at TIMESTAMPTZ NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		returned_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT loans_due_after_borrowed CHECK (due_date > borrowed_at),
		CONSTRAINT loans_returned_at_matches_status CHECK ((status = 'returned') = (returned_at IS NOT NULL))
	);`,
	"CREATE UNIQUE INDEX IF NOT EXISTS loans_one_active_per_user_book ON loans(user_id, book_id) WHERE status = 'borrowed';",
	"CREATE INDEX IF NOT EXISTS idx_loans_book_status ON loans(book_id, status);",
	"CREATE INDEX IF NOT EXISTS idx_loans_user_id ON loans(user_id);",
	"CREATE INDEX IF NOT EXISTS idx_loans_due_date ON loans(due_date) WHERE status = 'borrowed';",
}

// Migrate creates the schema if it does not exist. It is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// translate maps driver errors onto domain errors. Unique violations become
// ErrConstraintConflict, wrapped with the constraint name.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if name, ok := uniqueConstraint(err); ok {
		return fmt.Errorf("%w: %s", domain.ErrConstraintConflict, name)
	}
	return err
}

func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

type scanner interface {
	Scan(dest ...any) error
}
