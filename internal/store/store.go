// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package store owns the PostgreSQL schema and connection setup shared by
// the directory adapters.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultConnectAttempts is used when Connect is given fewer than one attempt.
const DefaultConnectAttempts = 5

// connectBackoffBase is the first delay between connection attempts.
var connectBackoffBase = 250 * time.Millisecond

// Connect opens a pool and pings it, retrying with exponential backoff so the
// server can start alongside a database that is still booting.
func Connect(ctx context.Context, databaseURL string, attempts int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if attempts < 1 {
		attempts = DefaultConnectAttempts
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), //nolint:gosec // attempts >= 1
		retry.WithCappedDuration(5*time.Second, retry.NewExponential(connectBackoffBase)))

	var pool *pgxpool.Pool
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return retry.RetryableError(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "connect to database").
			With("attempts", attempts).
			Wrap(err)
	}
	return pool, nil
}
