// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// DirectoryOpener opens the user directory for the configured driver.
	// Default: openDirectory
	DirectoryOpener func(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (UserDirectory, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, checker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// Environ returns the process environment.
	// Default: os.Environ
	Environ func() []string
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory creates a migrator from a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// Environ returns the process environment.
	// Default: os.Environ
	Environ func() []string
}

// UserDirectory is an auth.Directory the server can probe and release.
type UserDirectory interface {
	auth.Directory
	Ping(ctx context.Context) error
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	PendingMigrations() ([]uint, error)
	Close() error
}

var (
	_ ObservabilityServer = (*observability.Server)(nil)
	_ Migrator            = (*store.Migrator)(nil)
)
