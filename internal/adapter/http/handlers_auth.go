// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"lending/internal/app"
	"lending/internal/domain"
)

const oauthStateCookie = "oauth_state"

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   86400,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req credentials
	if err := parseJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := s.authSvc.Login(r.Context(), req.Email, req.Password, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	if cookie, err := r.Cookie(sessionCookie); err == nil {
		_ = s.authSvc.Logout(r.Context(), cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req credentials
	if err := parseJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token, expiresAt, err := s.authSvc.IssueToken(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// handleSetup creates the first librarian. It only succeeds while no users
// exist.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		needs, err := s.authSvc.NeedsSetup(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"needs_setup": needs})

	case http.MethodPost:
		var req app.NewUserRequest
		if err := parseJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := s.authSvc.CreateInitialUser(r.Context(), req)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user := userFrom(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sso_enabled":  s.oidcConfig.Enabled,
		"forward_auth": s.forwardAuth,
	})
}

func (s *Server) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	if !s.oidcConfig.Enabled {
		writeError(w, http.StatusNotFound, errors.New("sso disabled"))
		return
	}
	state := generateState()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode, // Lax required for cross-site redirect returns
		MaxAge:   300,
	})
	http.Redirect(w, r, s.oidcConfig.OAuth2Config.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	if !s.oidcConfig.Enabled {
		writeError(w, http.StatusNotFound, errors.New("sso disabled"))
		return
	}

	state, err := r.Cookie(oauthStateCookie)
	if err != nil || !app.ConstantTimeCompare(r.URL.Query().Get("state"), state.Value) {
		writeError(w, http.StatusBadRequest, errors.New("invalid state"))
		return
	}

	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, MaxAge: -1, Path: "/"})

	token, err := s.oidcConfig.OAuth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		s.log().Warn("sso exchange", "err", err)
		writeError(w, http.StatusBadGateway, errors.New("failed to exchange token"))
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		writeError(w, http.StatusBadGateway, errors.New("no id_token"))
		return
	}

	idToken, err := s.oidcConfig.Provider.Verifier(&oidc.Config{ClientID: s.oidcConfig.OAuth2Config.ClientID}).Verify(r.Context(), rawIDToken)
	if err != nil {
		s.log().Warn("sso verify", "err", err)
		writeError(w, http.StatusUnauthorized, errors.New("failed to verify token"))
		return
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err = idToken.Claims(&claims); err != nil || claims.Email == "" {
		writeError(w, http.StatusUnauthorized, errors.New("id_token carries no email"))
		return
	}

	sessionToken, err := s.authSvc.LoginWithUser(r.Context(), claims.Email, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	setSessionCookie(w, sessionToken)
	http.Redirect(w, r, "/", http.StatusFound)
}

func generateState() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
