package adapthttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"lending/internal/adapter/metrics"
	"lending/internal/app"
)

// OIDCConfig holds the SSO provider. SSO routes answer 404 unless Enabled.
type OIDCConfig struct {
	Enabled      bool
	Provider     *oidc.Provider
	OAuth2Config oauth2.Config
}

// Services are the application services the adapter drives.
type Services struct {
	Catalog   *app.CatalogService
	Lending   *app.LendingService
	Dashboard *app.DashboardService
	Auth      *app.AuthService
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	catalog   *app.CatalogService
	lending   *app.LendingService
	dashboard *app.DashboardService
	authSvc   *app.AuthService

	logger      *slog.Logger
	metrics     *metrics.Metrics
	oidcConfig  OIDCConfig
	forwardAuth bool
	publicToken string
	webDir      string
	ping        func(context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request metrics and serves them on /api/metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithOIDC enables SSO login.
func WithOIDC(cfg OIDCConfig) Option {
	return func(s *Server) { s.oidcConfig = cfg }
}

// WithForwardAuth trusts the Remote-User header set by a reverse proxy.
func WithForwardAuth(enabled bool) Option {
	return func(s *Server) { s.forwardAuth = enabled }
}

// WithPublicAPIToken enables the read-only catalog under /api/public for
// callers presenting token.
func WithPublicAPIToken(token string) Option {
	return func(s *Server) { s.publicToken = token }
}

// WithWebDir serves a single-page frontend from dir.
func WithWebDir(dir string) Option {
	return func(s *Server) { s.webDir = dir }
}

// WithHealthCheck makes /api/health report 503 while ping fails.
func WithHealthCheck(ping func(context.Context) error) Option {
	return func(s *Server) { s.ping = ping }
}

// New creates a Server wired to the given application services.
func New(svc Services, opts ...Option) *Server {
	s := &Server{
		catalog:   svc.Catalog,
		lending:   svc.Lending,
		dashboard: svc.Dashboard,
		authSvc:   svc.Auth,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	public := http.NewServeMux()
	public.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		public.Handle("/metrics", s.metrics.Handler())
	}
	public.HandleFunc("/setup", s.handleSetup)
	public.HandleFunc("/auth/login", s.handleLogin)
	public.HandleFunc("/auth/logout", s.handleLogout)
	public.HandleFunc("/auth/token", s.handleToken)
	public.HandleFunc("/auth/config", s.handleConfig)
	public.HandleFunc("/auth/sso/login", s.handleSSOLogin)
	public.HandleFunc("/auth/sso/callback", s.handleSSOCallback)
	public.Handle("/public/books", s.publicAPI(http.HandlerFunc(s.handlePublicBooks)))
	public.Handle("/public/books/{id}", s.publicAPI(http.HandlerFunc(s.handlePublicBook)))

	api := http.NewServeMux()
	api.HandleFunc("/auth/me", s.handleMe)
	api.HandleFunc("/books", s.handleBooks)
	api.HandleFunc("/books/{id}", s.handleBook)
	api.HandleFunc("/loans", s.handleLoans)
	api.HandleFunc("/loans/{id}", s.handleLoan)
	api.HandleFunc("/loans/{id}/return", s.handleLoanReturn)
	api.HandleFunc("/dashboard", s.handleDashboard)
	api.HandleFunc("/users", s.handleUsers)
	public.Handle("/", s.authMiddleware(api))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", public))
	if s.webDir != "" {
		root.Handle("/", spaFromDisk(s.webDir))
	}

	return withNoCache(s.loggingMiddleware(root))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			s.log().Warn("health check", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
