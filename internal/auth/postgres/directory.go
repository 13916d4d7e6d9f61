// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package postgres implements auth.Directory on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// poolIface is satisfied by *pgxpool.Pool and pgxmock pools.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

var _ auth.Directory = (*Directory)(nil)

// Directory stores users in the users table created by the store migrations.
type Directory struct {
	pool poolIface
}

// NewDirectory creates a Directory over pool.
func NewDirectory(pool poolIface) *Directory {
	return &Directory{pool: pool}
}

const selectUser = `SELECT id, email, password_hash, created_at FROM users`

// FindByEmail looks up a user by normalized email.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	row := d.pool.QueryRow(ctx, selectUser+` WHERE email = $1`, email)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}
	return user, nil
}

// FindByID looks up a user by id.
func (d *Directory) FindByID(ctx context.Context, id ulid.ULID) (*auth.UserRecord, error) {
	row := d.pool.QueryRow(ctx, selectUser+` WHERE id = $1`, id.String())
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "find user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// CreateUnique inserts user. The unique index on email arbitrates races: the
// losing insert gets auth.ErrAlreadyExists.
func (d *Directory) CreateUnique(ctx context.Context, user *auth.UserRecord) (*auth.UserRecord, error) {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID.String(), user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_ALREADY_EXISTS").
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrAlreadyExists)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	created := *user
	return &created, nil
}

// UpdatePasswordHash replaces the digest of the user with id.
func (d *Directory) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	tag, err := d.pool.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id.String())
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update password hash").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Ping checks the database is reachable.
func (d *Directory) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return oops.Code("USER_STORE_UNREACHABLE").Wrap(err)
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.UserRecord, error) {
	var (
		id        string
		user      auth.UserRecord
		createdAt time.Time
	)
	if err := row.Scan(&id, &user.Email, &user.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ROW").With("id", id).Wrap(err)
	}
	user.ID = parsed
	user.CreatedAt = createdAt.UTC()
	return &user, nil
}
