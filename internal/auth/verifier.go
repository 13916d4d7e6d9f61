// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// CredentialVerifier checks an email and password against the directory.
type CredentialVerifier struct {
	users   Directory
	hasher  PasswordHasher
	limiter *HashLimiter
	logger  *slog.Logger
	decoy   string
}

// NewCredentialVerifier creates a CredentialVerifier. It computes one decoy
// digest up front with hasher, so construction costs one hash.
func NewCredentialVerifier(users Directory, hasher PasswordHasher, opts ...Option) (*CredentialVerifier, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("user directory is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	decoy, err := NewDecoyDigest(hasher)
	if err != nil {
		return nil, err
	}
	return &CredentialVerifier{
		users:   users,
		hasher:  hasher,
		limiter: o.limiter,
		logger:  o.logger,
		decoy:   decoy,
	}, nil
}

// Verify returns the user whose email and password match. An unknown email
// and a wrong password produce the same error and cost the same hash. A
// matching digest written by another algorithm or cost is rehashed while the
// hash slot is held.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*UserRecord, error) {
	email = NormalizeEmail(email)

	release, err := v.limiter.Acquire(ctx)
	if err != nil {
		return nil, unavailable("wait for hash slot", err)
	}
	defer release()

	user, err := v.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, unavailable("find user by email", err)
		}
		v.hasher.Verify(password, v.decoy)
		v.logger.DebugContext(ctx, "credential check failed", "reason", "unknown_email")
		return nil, unauthorized()
	}

	if !v.hasher.Verify(password, user.PasswordHash) {
		v.logger.DebugContext(ctx, "credential check failed", "reason", "password_mismatch", "user", user)
		return nil, unauthorized()
	}
	if v.hasher.NeedsUpgrade(user.PasswordHash) {
		v.upgrade(ctx, user, password)
	}
	return user, nil
}

// upgrade rewrites a legacy or stale digest with the current hasher so the
// account's next check costs the same as the decoy. Failures leave the old
// digest in place and never fail the login.
func (v *CredentialVerifier) upgrade(ctx context.Context, user *UserRecord, password string) {
	digest, err := v.hasher.Hash(password)
	if err != nil {
		v.logger.WarnContext(ctx, "password rehash failed", "user", user, "error", err)
		return
	}
	if err := v.users.UpdatePasswordHash(ctx, user.ID, digest); err != nil {
		v.logger.WarnContext(ctx, "storing rehashed password failed", "user", user, "error", err)
		return
	}
	user.PasswordHash = digest
	v.logger.InfoContext(ctx, "password digest upgraded", "user", user)
}
