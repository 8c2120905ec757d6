package adapthttp

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"lending/internal/app"
	"lending/internal/domain"
)

type contextKey string

const (
	userContextKey      contextKey = "user"
	requestIDContextKey contextKey = "request_id"
)

const requestIDHeader = "X-Request-ID"

// userFrom returns the authenticated user, or nil for an anonymous request.
func userFrom(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userContextKey).(*domain.User)
	return u
}

// actorFrom returns the caller's identity; nil means unauthenticated and is
// left to the services to reject.
func actorFrom(ctx context.Context) *domain.Actor {
	return userFrom(ctx).Actor()
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// authMiddleware resolves the caller from a bearer token, the forward auth
// header or the session cookie, in that order. Requests without credentials
// pass through anonymously.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		switch {
		case err == nil:
		case errors.Is(err, app.ErrSessionNotFound), errors.Is(err, app.ErrSessionExpired),
			errors.Is(err, app.ErrInvalidToken), errors.Is(err, app.ErrUserNotFound),
			errors.Is(err, app.ErrTokensDisabled):
			writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
			return
		default:
			s.log().Error("authenticate", "err", err, "request_id", requestIDFrom(r.Context()))
			writeError(w, http.StatusInternalServerError, errInternal)
			return
		}

		if user != nil {
			r = r.WithContext(context.WithValue(r.Context(), userContextKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(r *http.Request) (*domain.User, error) {
	if raw, ok := bearerToken(r); ok {
		return s.authSvc.ValidateToken(r.Context(), raw)
	}

	if s.forwardAuth {
		if remoteUser := r.Header.Get("Remote-User"); remoteUser != "" {
			return s.authSvc.ValidateForwardAuth(r.Context(), remoteUser)
		}
	}

	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, nil
	}
	return s.authSvc.ValidateSession(r.Context(), cookie.Value, r.UserAgent())
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware tags each request with an ID and logs it once it
// completes.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDContextKey, id))

		if s.metrics != nil {
			s.metrics.HTTPRequestsInFlight.Inc()
			defer s.metrics.HTTPRequestsInFlight.Dec()
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		if s.metrics != nil {
			s.metrics.ObserveHTTP(r.Method, routeLabel(r.URL.Path), rec.status, elapsed)
		}
		s.log().Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
			"request_id", id,
		)
	})
}

var numericSegment = regexp.MustCompile(`/\d+(/|$)`)

// otherRoute labels every path that matches no known route.
const otherRoute = "other"

var knownRoutes = map[string]bool{
	"/":                      true,
	"/api/health":            true,
	"/api/metrics":           true,
	"/api/setup":             true,
	"/api/auth/login":        true,
	"/api/auth/logout":       true,
	"/api/auth/token":        true,
	"/api/auth/config":       true,
	"/api/auth/me":           true,
	"/api/auth/sso/login":    true,
	"/api/auth/sso/callback": true,
	"/api/books":             true,
	"/api/books/:id":         true,
	"/api/loans":             true,
	"/api/loans/:id":         true,
	"/api/loans/:id/return":  true,
	"/api/dashboard":         true,
	"/api/users":             true,
	"/api/public/books":      true,
	"/api/public/books/:id":  true,
}

// routeLabel maps a request path onto a known route with numeric segments
// collapsed, or onto otherRoute, so metric labels stay bounded.
func routeLabel(path string) string {
	for numericSegment.MatchString(path) {
		path = numericSegment.ReplaceAllString(path, "/:id$1")
	}
	if !knownRoutes[path] {
		return otherRoute
	}
	return path
}
