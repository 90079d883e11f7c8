package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/leasing-assistant/internal/persistence/sqlite"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), opts, statusOnly, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "print applied and pending migrations without applying them")
	return cmd
}

func runMigrate(ctx context.Context, opts *rootOptions, statusOnly bool, out io.Writer) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	storage, err := sqlite.Open(cfg.SQLiteDSN, sqlite.WithLogger(logger))
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		return err
	}
	defer storage.Close()

	if !statusOnly {
		if err := storage.Migrate(ctx); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			return err
		}
	}

	status, err := storage.MigrationStatus(ctx)
	if err != nil {
		logger.Error("failed to read migration status", "error", err)
		return err
	}
	fmt.Fprintf(out, "current version: %s\n", displayVersion(status.CurrentVersion))
	for _, applied := range status.AppliedMigrations {
		fmt.Fprintf(out, "applied  %s  %s\n", applied.Version, applied.AppliedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	for _, pending := range status.PendingMigrations {
		fmt.Fprintf(out, "pending  %s  %s\n", pending.Version, pending.Description)
	}
	return nil
}

func displayVersion(version string) string {
	if version == "" {
		return "none"
	}
	return version
}
