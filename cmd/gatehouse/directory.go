// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/memory"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/auth/sqlite"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/store"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

type pingDirectory interface {
	auth.Directory
	Ping(ctx context.Context) error
}

// directoryCloser attaches a release func to a directory that has none.
type directoryCloser struct {
	pingDirectory
	close func() error
}

func (d directoryCloser) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

// openDirectory opens the backend named by cfg.Driver.
func openDirectory(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (UserDirectory, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := store.Connect(ctx, cfg.DatabaseURL, cfg.ConnectAttempts)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to database", "driver", cfg.Driver)
		return directoryCloser{
			pingDirectory: postgres.NewDirectory(pool),
			close:         func() error { pool.Close(); return nil },
		}, nil
	case config.DriverSQLite:
		if cfg.SQLitePath != ":memory:" {
			if err := xdg.EnsureDir(filepath.Dir(cfg.SQLitePath)); err != nil {
				return nil, err
			}
		}
		dir, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("opened database", "driver", cfg.Driver, "path", cfg.SQLitePath)
		return dir, nil
	case config.DriverMemory:
		logger.Warn("using in-memory user store; accounts are lost on exit")
		return directoryCloser{pingDirectory: memory.NewDirectory()}, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "store.driver").Errorf("unknown store driver %q", cfg.Driver)
	}
}
