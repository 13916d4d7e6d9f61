// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// HashLimiter bounds the number of password hashes computed at once.
// Each argon2id computation holds its full memory cost until it returns.
type HashLimiter struct {
	sem     *semaphore.Weighted
	observe func(wait time.Duration)
}

// NewHashLimiter allows n concurrent computations. n < 1 means one per CPU.
// observe, if non-nil, receives how long each caller waited for a slot.
func NewHashLimiter(n int, observe func(wait time.Duration)) *HashLimiter {
	if n < 1 {
		n = runtime.NumCPU()
	}
	return &HashLimiter{
		sem:     semaphore.NewWeighted(int64(n)),
		observe: observe,
	}
}

// Acquire blocks until a slot is free or ctx is done. A nil limiter never
// blocks.
func (l *HashLimiter) Acquire(ctx context.Context) (release func(), err error) {
	if l == nil {
		return func() {}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if l.observe != nil {
		l.observe(time.Since(start))
	}
	return func() { l.sem.Release(1) }, nil
}
