// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// UserRecord is a persisted identity. Only a Directory creates or stores
// records; PasswordHash never leaves the process.
type UserRecord struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string `json:"-"`
	CreatedAt    time.Time
}

// NewUserRecord creates a UserRecord with a fresh ID. email must already be
// normalized.
func NewUserRecord(email, passwordHash string, createdAt time.Time) (*UserRecord, error) {
	if email != NormalizeEmail(email) {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email must be normalized")
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	createdAt = createdAt.UTC()
	return &UserRecord{
		ID:           ulid.MustNew(ulid.Timestamp(createdAt), ulid.DefaultEntropy()),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
	}, nil
}

// View returns the public projection of the record.
func (u UserRecord) View() *UserView {
	return &UserView{
		ID:        u.ID.String(),
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// MarshalJSON encodes the record as its UserView.
func (u UserRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.View())
}

// LogValue implements slog.LogValuer.
func (u UserRecord) LogValue() slog.Value {
	return slog.GroupValue(slog.String("id", u.ID.String()))
}

// UserView is the caller-facing shape of a user.
type UserView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Directory stores user records keyed by normalized email.
type Directory interface {
	// FindByEmail returns ErrNotFound when no record has the email.
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)

	// FindByID returns ErrNotFound when no record has the id.
	FindByID(ctx context.Context, id ulid.ULID) (*UserRecord, error)

	// CreateUnique inserts user atomically. It is the only arbiter of email
	// uniqueness and returns ErrAlreadyExists when the email is taken.
	CreateUnique(ctx context.Context, user *UserRecord) (*UserRecord, error)

	// UpdatePasswordHash replaces the stored digest of the user with id.
	// It returns ErrNotFound when no record has the id.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error
}
