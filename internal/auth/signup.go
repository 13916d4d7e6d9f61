// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// SignupOrchestrator registers new users.
type SignupOrchestrator struct {
	users   Directory
	hasher  PasswordHasher
	limiter *HashLimiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewSignupOrchestrator creates a SignupOrchestrator.
func NewSignupOrchestrator(users Directory, hasher PasswordHasher, opts ...Option) (*SignupOrchestrator, error) {
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
	return &SignupOrchestrator{
		users:   users,
		hasher:  hasher,
		limiter: o.limiter,
		logger:  o.logger,
		now:     o.now,
	}, nil
}

// Signup creates a user. A taken email yields ErrEmailInUse whether it was
// seen by the pre-check or lost the insert race. The insert is the only
// side effect.
func (s *SignupOrchestrator) Signup(ctx context.Context, email, password string) (*UserView, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, emailInUse()
	case !errors.Is(err, ErrNotFound):
		return nil, unavailable("find user by email", err)
	}

	digest, err := s.hash(ctx, password)
	if err != nil {
		return nil, err
	}

	record, err := NewUserRecord(email, digest, s.now())
	if err != nil {
		return nil, err
	}

	created, err := s.users.CreateUnique(ctx, record)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, emailInUse()
		}
		return nil, unavailable("create user", err)
	}

	s.logger.InfoContext(ctx, "user created", "user", created)
	return created.View(), nil
}

func (s *SignupOrchestrator) hash(ctx context.Context, password string) (string, error) {
	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		return "", unavailable("wait for hash slot", err)
	}
	defer release()

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return "", unavailable("hash password", err)
	}
	return digest, nil
}
