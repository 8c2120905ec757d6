package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	adapthttp "lending/internal/adapter/http"
	"lending/internal/adapter/memory"
	"lending/internal/adapter/metrics"
	"lending/internal/adapter/postgres"
	"lending/internal/app"
	"lending/internal/config"
	"lending/internal/domain"
	"lending/internal/logging"
)

// stores is the set of ports one backend provides.
type stores struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	books    domain.BookRepository
	loans    domain.LoanRepository
	lending  domain.LendingStore
	ping     func(context.Context) error
	close    func() error
}

func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		db := memory.New()
		return &stores{
			users:    db,
			sessions: db.NewSessionRepo(),
			books:    db,
			loans:    db,
			lending:  db,
			ping:     func(context.Context) error { return nil },
			close:    func() error { return nil },
		}, nil
	case config.StorePostgres:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		return &stores{
			users:    db,
			sessions: postgres.NewSessionRepo(db),
			books:    db,
			loans:    db,
			lending:  db,
			ping:     db.Ping,
			close:    db.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func oidcConfig(ctx context.Context, cfg config.OIDCConfig) (adapthttp.OIDCConfig, error) {
	if !cfg.Enabled() {
		return adapthttp.OIDCConfig{}, nil
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return adapthttp.OIDCConfig{}, fmt.Errorf("oidc provider: %w", err)
	}
	return adapthttp.OIDCConfig{
		Enabled:  true,
		Provider: provider,
		OAuth2Config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stdout})
	slog.SetDefault(logger)
	logger.Info("starting", "config", cfg.String())

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	if err := st.sessions.DeleteExpired(ctx); err != nil {
		logger.Warn("delete expired sessions", "err", err)
	}

	loc := cfg.Location()
	clock := func() time.Time { return time.Now().In(loc) }
	m := metrics.New("lending")

	authSvc := app.NewAuthService(st.users, st.sessions)
	if cfg.Auth.JWTSecret != "" {
		authSvc.WithTokens(app.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL))
	}

	sso, err := oidcConfig(ctx, cfg.OIDC)
	if err != nil {
		return err
	}

	srv := adapthttp.New(adapthttp.Services{
		Catalog:   app.NewCatalogService(st.books, logger).WithClock(clock),
		Lending:   app.NewLendingService(st.lending, st.loans, logger).WithClock(clock).WithRecorder(m),
		Dashboard: app.NewDashboardService(st.books, st.loans, st.users).WithClock(clock),
		Auth:      authSvc,
	},
		adapthttp.WithLogger(logger),
		adapthttp.WithMetrics(m),
		adapthttp.WithOIDC(sso),
		adapthttp.WithForwardAuth(cfg.Auth.ForwardAuth),
		adapthttp.WithPublicAPIToken(cfg.Auth.PublicAPIToken),
		adapthttp.WithWebDir(cfg.WebDir),
		adapthttp.WithHealthCheck(st.ping),
	)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}
