// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"fmt"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/store"
)

// NewMigrateCmd creates the migrate subcommand. Without a subcommand it
// applies all pending migrations.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(nil)
}

func newMigrateCmd(deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if deps.Environ == nil {
		deps.Environ = os.Environ
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply or roll back the PostgreSQL schema for the user store.
The database URL comes from --database-url, DATABASE_URL or the config file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, runMigrateUp)
		},
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, runMigrateUp)
		},
	}

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(cmd *cobra.Command, m Migrator) error {
				return runMigrateDown(cmd, m, all)
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the schema version and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, runMigrateStatus)
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

// withMigrator resolves the database URL, opens a migrator and runs fn.
func withMigrator(cmd *cobra.Command, deps *MigrateDeps, fn func(*cobra.Command, Migrator) error) error {
	opts, err := loadOptions(cmd, deps.Environ)
	if err != nil {
		return err
	}
	cfg, err := config.Read(opts)
	if err != nil {
		return err
	}
	if cfg.Store.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "store.database_url").
			Errorf("DATABASE_URL environment variable or --database-url is required")
	}

	m, err := deps.MigratorFactory(cfg.Store.DatabaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("Warning: failed to close migrator: %v\n", closeErr)
		}
	}()

	return fn(cmd, m)
}

func runMigrateUp(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	return printVersion(cmd, m, "Migrations completed successfully")
}

func runMigrateDown(cmd *cobra.Command, m Migrator, all bool) error {
	if all {
		cmd.Println("Rolling back all migrations...")
		if err := m.Down(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "roll back all migrations").Wrap(err)
		}
	} else {
		cmd.Println("Rolling back one migration...")
		if err := m.Steps(-1); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "roll back migration").Wrap(err)
		}
	}
	return printVersion(cmd, m, "Rollback completed successfully")
}

func runMigrateStatus(cmd *cobra.Command, m Migrator) error {
	if err := printVersion(cmd, m, ""); err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "list pending migrations").Wrap(err)
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	cmd.Printf("Pending migrations (%d):\n", len(pending))
	for _, v := range pending {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		cmd.Printf("  %s\n", name)
	}
	return nil
}

func printVersion(cmd *cobra.Command, m Migrator, done string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read schema version").Wrap(err)
	}
	if done != "" {
		cmd.Println(done)
	}
	if dirty {
		cmd.Printf("Schema version: %d (dirty)\n", version)
		return nil
	}
	cmd.Printf("Schema version: %d\n", version)
	return nil
}
