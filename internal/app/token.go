package app

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lending/internal/domain"
)

// ErrInvalidToken indicates a bearer token that is malformed, expired or
// signed with another key.
var ErrInvalidToken = errors.New("invalid token")

// TokenClaims are the claims of an API bearer token.
type TokenClaims struct {
	jwt.RegisteredClaims
	Email string      `json:"email,omitempty"`
	Role  domain.Role `json:"role,omitempty"`
}

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns an issuer for secret. Tokens expire after ttl.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for u and returns it with its expiry.
func (t *TokenIssuer) Issue(u *domain.User) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: u.Email,
		Role:  u.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies raw and returns the user ID it was issued for.
func (t *TokenIssuer) Parse(raw string) (int64, error) {
	token, err := jwt.ParseWithClaims(raw, &TokenClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}
