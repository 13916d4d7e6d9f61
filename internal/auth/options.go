// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Option configures the components in this package.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	limiter *HashLimiter
	now     func() time.Time
}

// WithLogger sets the logger. A nil logger is rejected by constructors.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHashLimiter bounds concurrent hash computations. Without it hashing is
// unbounded.
func WithHashLimiter(l *HashLimiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) (options, error) {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		return o, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	if o.now == nil {
		return o, oops.Code("AUTH_INVALID_CONFIG").Errorf("clock is required")
	}
	return o, nil
}
