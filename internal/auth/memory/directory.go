// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package memory provides an in-process auth.Directory for development and
// tests. Records are lost when the process exits.
package memory

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Directory is a mutex-guarded map of users keyed by email and id.
type Directory struct {
	mu      sync.RWMutex
	byEmail map[string]*auth.UserRecord
	byID    map[ulid.ULID]*auth.UserRecord
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		byEmail: make(map[string]*auth.UserRecord),
		byID:    make(map[ulid.ULID]*auth.UserRecord),
	}
}

// FindByEmail implements auth.Directory.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "find user by email").Wrap(err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return clone(user), nil
}

// FindByID implements auth.Directory.
func (d *Directory) FindByID(ctx context.Context, id ulid.ULID) (*auth.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "find user by id").Wrap(err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return clone(user), nil
}

// CreateUnique implements auth.Directory. The existence check and the
// insert happen under one write lock.
func (d *Directory) CreateUnique(ctx context.Context, user *auth.UserRecord) (*auth.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "create user").Wrap(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.byEmail[user.Email]; taken {
		return nil, oops.Code("USER_ALREADY_EXISTS").Wrap(auth.ErrAlreadyExists)
	}
	if _, taken := d.byID[user.ID]; taken {
		return nil, oops.Code("USER_ALREADY_EXISTS").With("user_id", user.ID.String()).Wrap(auth.ErrAlreadyExists)
	}

	stored := clone(user)
	d.byEmail[stored.Email] = stored
	d.byID[stored.ID] = stored
	return clone(stored), nil
}

// UpdatePasswordHash implements auth.Directory.
func (d *Directory) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("operation", "update password hash").Wrap(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	updated := clone(user)
	updated.PasswordHash = passwordHash
	d.byID[id] = updated
	d.byEmail[updated.Email] = updated
	return nil
}

// Len returns the number of stored users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// Ping implements the readiness check; the map is always available.
func (d *Directory) Ping(context.Context) error {
	return nil
}

func clone(u *auth.UserRecord) *auth.UserRecord {
	c := *u
	return &c
}

var _ auth.Directory = (*Directory)(nil)
