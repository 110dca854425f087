package main

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/morezero/agent-link/internal/config"
	"github.com/morezero/agent-link/pkg/audit"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the audit sink schema (DATABASE_URL, MIGRATION_PATH)",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run database migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrateUp(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration files and whether the schema is present",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrateStatus(cmd.Context(), cmd.OutOrStdout())
			},
		},
	)
	return cmd
}

func loadDBConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMigrateUp(ctx context.Context) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	migrations, err := audit.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	pool, err := audit.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := audit.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus(ctx context.Context, w io.Writer) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	migrations, err := audit.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	pool, err := audit.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	present, err := audit.SchemaPresent(ctx, pool)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "migrations in %s:\n", cfg.MigrationPath)
	for _, m := range migrations {
		fmt.Fprintf(w, "  %s\n", m.Name)
	}
	fmt.Fprintf(w, "command_outcomes present: %t\n", present)
	return nil
}

func newEnsureDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-db [name]",
		Short: "Create the database if missing (default name: agentlink_test), on the DATABASE_URL host",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "agentlink_test"
			if len(args) == 1 && args[0] != "" {
				name = args[0]
			}
			return runEnsureDB(cmd.Context(), cmd.OutOrStdout(), name)
		},
	}
}

// targetDatabaseURL replaces the database in databaseURL with name,
// keeping the query (e.g. sslmode).
func targetDatabaseURL(databaseURL, name string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}

func runEnsureDB(ctx context.Context, w io.Writer, name string) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	target, err := targetDatabaseURL(cfg.DatabaseURL, name)
	if err != nil {
		return err
	}
	created, err := audit.EnsureDatabase(ctx, target)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(w, "Database %q created.\n", name)
	} else {
		fmt.Fprintf(w, "Database %q is ready.\n", name)
	}
	return nil
}
