// Command lendingctl is the operator CLI: schema migration, account creation
// and catalog import against the PostgreSQL store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"lending/internal/adapter/postgres"
	"lending/internal/config"
	"lending/internal/domain"
	"lending/internal/logging"
)

// operator is the identity CLI commands act as.
var operator = &domain.Actor{Role: domain.RoleLibrarian}

type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (e *env) open() (*postgres.DB, error) {
	if e.cfg.Store != config.StorePostgres {
		return nil, errors.New("lendingctl requires STORE=postgres")
	}
	return postgres.Open(e.cfg.DatabaseURL)
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "lendingctl",
		Short:         "Operate the library lending service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})
			return nil
		},
	}
	root.AddCommand(newMigrateCmd(e), newUserCmd(e), newBookCmd(e))
	return root
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := e.open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
