// Package domain contains the core business entities, the pure lending
// rules and the repository ports.
package domain

import (
	"context"
	"fmt"
	"time"
)

// Role is the closed set of user roles. Every switch over Role must be
// exhaustive; the exhaustive linter enforces it.
type Role string

const (
	RoleMember    Role = "member"
	RoleLibrarian Role = "librarian"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleMember, RoleLibrarian:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// User represents an authenticated user in the system.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Actor returns the authorization identity of u.
func (u *User) Actor() *Actor {
	if u == nil {
		return nil
	}
	return &Actor{UserID: u.ID, Role: u.Role}
}

// Actor is the identity every operation is evaluated against. A nil *Actor
// is an unauthenticated caller.
type Actor struct {
	UserID int64
	Role   Role
}

// Session represents an active user session.
type Session struct {
	Token     string
	UserID    int64
	UserAgent string
	IP        string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewUser is the input for creating a user.
type NewUser struct {
	Email        string
	FirstName    string
	LastName     string
	Role         Role
	PasswordHash string
}

// UserRepository defines the port for user persistence operations. Lookups
// return (nil, nil) when no user matches; Create reports a duplicate email as
// ErrConstraintConflict.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, u NewUser) (*User, error)
	Count(ctx context.Context) (int, error)
	CountByRole(ctx context.Context, role Role) (int, error)
}

// SessionRepository defines the port for session persistence operations.
// GetByToken returns (nil, nil) for an unknown token.
type SessionRepository interface {
	Create(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) error
}
