package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lending/internal/domain"
)

const userColumns = "id, email, first_name, last_name, role, password_hash, created_at"

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail retrieves a user by email.
func (d *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(d.sql.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

// GetByID retrieves a user by ID.
func (d *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(d.sql.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

// Create creates a new user.
func (d *DB) Create(ctx context.Context, nu domain.NewUser) (*domain.User, error) {
	u, err := scanUser(d.sql.QueryRowContext(ctx,
		"INSERT INTO users (email, first_name, last_name, role, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+userColumns,
		nu.Email, nu.FirstName, nu.LastName, nu.Role, nu.PasswordHash, time.Now().UTC(),
	))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// Count returns the total number of users.
func (d *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CountByRole returns the number of users holding role.
func (d *DB) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	var count int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE role = $1", role).Scan(&count)
	return count, err
}

// SessionRepo implements session repository operations on DB.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo wraps a DB as a SessionRepository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
	_, err := r.db.sql.ExecContext(ctx,
		"INSERT INTO sessions (user_id, token, user_agent, ip, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		userID, token, userAgent, ip, expiresAt, time.Now().UTC(),
	)
	return err
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.sql.QueryRowContext(ctx,
		"SELECT token, user_id, user_agent, ip, expires_at, created_at FROM sessions WHERE token = $1",
		token,
	).Scan(&s.Token, &s.UserID, &s.UserAgent, &s.IP, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete deletes a session by token.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.sql.ExecContext(ctx, "DELETE FROM sessions WHERE token = $1", token)
	return err
}

// DeleteExpired deletes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.db.sql.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < $1", time.Now())
	return err
}
