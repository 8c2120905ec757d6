// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"lending/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

const sessionTTL = 24 * time.Hour

var (
	// ErrInvalidCredentials indicates that the provided email or password was incorrect.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired indicates that the session has expired.
	ErrSessionExpired = errors.New("session expired")
	// ErrUserNotFound indicates that the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrSetupComplete indicates that the initial librarian already exists.
	ErrSetupComplete = errors.New("users already exist")
	// ErrTokensDisabled indicates that no signing secret was configured.
	ErrTokensDisabled = errors.New("bearer tokens are not enabled")
)

// NewUserRequest is the input for creating an account.
type NewUserRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Role      string `json:"role" validate:"required,oneof=member librarian"`
}

// AuthService handles authentication and session management.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	tokens   *TokenIssuer
}

// NewAuthService creates a new authentication service.
func NewAuthService(users domain.UserRepository, sessions domain.SessionRepository) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
	}
}

// WithTokens enables bearer tokens signed by issuer.
func (s *AuthService) WithTokens(issuer *TokenIssuer) *AuthService {
	s.tokens = issuer
	return s
}

// Authenticate checks an email and password pair.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil || user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates a user and creates a session.
func (s *AuthService) Login(ctx context.Context, email, password, userAgent, ip string) (string, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}
	return s.startSession(ctx, user.ID, userAgent, ip)
}

// IssueToken authenticates a user and returns a signed bearer token.
func (s *AuthService) IssueToken(ctx context.Context, email, password string) (string, time.Time, error) {
	if s.tokens == nil {
		return "", time.Time{}, ErrTokensDisabled
	}
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.tokens.Issue(user)
}

// ValidateToken resolves a bearer token to its user. The user must still
// exist; role changes are read from the store, not the token.
func (s *AuthService) ValidateToken(ctx context.Context, raw string) (*domain.User, error) {
	if s.tokens == nil {
		return nil, ErrTokensDisabled
	}
	id, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Logout invalidates a session.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// ValidateSession checks if a session token is valid and matches the user agent.
func (s *AuthService) ValidateSession(ctx context.Context, token, userAgent string) (*domain.User, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if time.Now().After(session.ExpiresAt) {
		_ = s.sessions.Delete(ctx, token)
		return nil, ErrSessionExpired
	}

	if session.UserAgent != userAgent {
		_ = s.sessions.Delete(ctx, token)
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	return user, nil
}

// NeedsSetup reports whether no user exists yet.
func (s *AuthService) NeedsSetup(ctx context.Context) (bool, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// CreateInitialUser creates the first librarian if no users exist.
func (s *AuthService) CreateInitialUser(ctx context.Context, req NewUserRequest) (*domain.User, error) {
	empty, err := s.NeedsSetup(ctx)
	if err != nil {
		return nil, err
	}
	if !empty {
		return nil, ErrSetupComplete
	}
	req.Role = string(domain.RoleLibrarian)
	return s.createUser(ctx, req)
}

// CreateUser adds an account on behalf of a librarian.
func (s *AuthService) CreateUser(ctx context.Context, actor *domain.Actor, req NewUserRequest) (*domain.User, error) {
	if err := domain.Authorize(actor, domain.ActionManageUsers, 0); err != nil {
		return nil, err
	}
	return s.createUser(ctx, req)
}

func (s *AuthService) createUser(ctx context.Context, req NewUserRequest) (*domain.User, error) {
	req.Email = normalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	ve, err := validateStruct(req)
	if err != nil {
		return nil, err
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, domain.NewUser{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
		PasswordHash: string(hash),
	})
	if errors.Is(err, domain.ErrConstraintConflict) {
		ve.Add("email", "has already been taken")
		return nil, ve
	}
	return user, err
}

// ValidateForwardAuth validates a request from Authelia forward auth.
// It checks for the Remote-User header set by Authelia.
func (s *AuthService) ValidateForwardAuth(ctx context.Context, remoteUser string) (*domain.User, error) {
	if remoteUser == "" {
		return nil, errors.New("no remote user header")
	}
	return s.findOrProvision(ctx, remoteUser)
}

// LoginWithUser creates a session for an already authenticated user (e.g. via SSO).
func (s *AuthService) LoginWithUser(ctx context.Context, email, userAgent, ip string) (string, error) {
	user, err := s.findOrProvision(ctx, email)
	if err != nil {
		return "", err
	}
	return s.startSession(ctx, user.ID, userAgent, ip)
}

// findOrProvision returns the user with email, creating a member without a
// password when none exists yet.
func (s *AuthService) findOrProvision(ctx context.Context, email string) (*domain.User, error) {
	email = normalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	user, err = s.users.Create(ctx, domain.NewUser{Email: email, Role: domain.RoleMember})
	if errors.Is(err, domain.ErrConstraintConflict) {
		// Lost a race with a concurrent first login.
		user, err = s.users.GetByEmail(ctx, email)
		if err == nil && user == nil {
			err = ErrUserNotFound
		}
	}
	return user, err
}

func (s *AuthService) startSession(ctx context.Context, userID int64, userAgent, ip string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(sessionTTL)
	if err := s.sessions.Create(ctx, userID, token, userAgent, ip, expiresAt); err != nil {
		return "", err
	}

	return token, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ConstantTimeCompare performs a constant-time comparison of two strings.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
