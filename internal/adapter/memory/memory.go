// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"sync"
	"time"

	"lending/internal/domain"
)

// DB implements an in-memory database storage. A single mutex guards every
// table, so a lending transaction sees and writes a consistent snapshot.
type DB struct {
	mu       sync.Mutex
	users    []*domain.User
	sessions map[string]*domain.Session
	books    map[int64]*domain.Book
	loans    map[int64]*domain.Loan

	userIDCounter int64
	bookIDCounter int64
	loanIDCounter int64
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		sessions: make(map[string]*domain.Session),
		books:    make(map[int64]*domain.Book),
		loans:    make(map[int64]*domain.Loan),
	}
}

// Ensure interfaces are met.
var _ domain.UserRepository = (*DB)(nil)
var _ domain.BookRepository = (*DB)(nil)
var _ domain.LoanRepository = (*DB)(nil)
var _ domain.LendingStore = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// --- UserRepository ---

// GetByEmail retrieves a user by email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if u := db.userByID(id); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, nu domain.NewUser) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == nu.Email {
			return nil, domain.ErrConstraintConflict
		}
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Email:        nu.Email,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		Role:         nu.Role,
		PasswordHash: nu.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	db.users = append(db.users, u)
	cp := *u
	return &cp, nil
}

// Count returns the total number of users.
func (db *DB) Count(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), nil
}

// CountByRole returns the number of users holding role.
func (db *DB) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	n := 0
	for _, u := range db.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (db *DB) userByID(id int64) *domain.User {
	for _, u := range db.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.sessions[token] = &domain.Session{
		Token:     token,
		UserID:    userID,
		UserAgent: userAgent,
		IP:        ip,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if s, ok := r.db.sessions[token]; ok {
		if time.Now().After(s.ExpiresAt) {
			delete(r.db.sessions, token)
			return nil, nil
		}
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

// Delete deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, token)
	return nil
}

// DeleteExpired deletes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := time.Now()
	for k, v := range r.db.sessions {
		if now.After(v.ExpiresAt) {
			delete(r.db.sessions, k)
		}
	}
	return nil
}
