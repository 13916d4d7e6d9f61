// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package sqlite implements auth.Directory on an embedded SQLite file via gorm.
package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	sqlitedriver "github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gatehouse/gatehouse/internal/auth"
)

var _ auth.Directory = (*Directory)(nil)

// userRow is the gorm model for the users table.
type userRow struct {
	ID           string    `gorm:"primaryKey;size:26"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

func (r userRow) record() (*auth.UserRecord, error) {
	id, err := ulid.Parse(r.ID)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ROW").With("id", r.ID).Wrap(err)
	}
	return &auth.UserRecord{
		ID:           id,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
	}, nil
}

// Directory stores users in a SQLite database.
type Directory struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the users
// table. Use ":memory:" for a throwaway database.
func Open(path string) (*Directory, error) {
	db, err := gorm.Open(sqlitedriver.Open(dsn(path)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		return nil, oops.Code("USER_STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, oops.Code("USER_STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	// SQLite allows a single writer; one connection also keeps :memory: shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, oops.Code("USER_STORE_MIGRATE_FAILED").With("path", path).Wrap(err)
	}
	return &Directory{db: db}, nil
}

// FindByEmail looks up a user by normalized email.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	var row userRow
	err := d.db.WithContext(ctx).Where("email = ?", email).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "find user by email").Wrap(err)
	}
	return row.record()
}

// FindByID looks up a user by id.
func (d *Directory) FindByID(ctx context.Context, id ulid.ULID) (*auth.UserRecord, error) {
	var row userRow
	err := d.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "find user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return row.record()
}

// CreateUnique inserts user; the unique index on email rejects duplicates.
func (d *Directory) CreateUnique(ctx context.Context, user *auth.UserRecord) (*auth.UserRecord, error) {
	row := userRow{
		ID:           user.ID.String(),
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, oops.Code("USER_ALREADY_EXISTS").Wrap(auth.ErrAlreadyExists)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("id", row.ID).
			Wrap(err)
	}
	created := *user
	return &created, nil
}

// UpdatePasswordHash replaces the digest of the user with id.
func (d *Directory) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	res := d.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id.String()).Update("password_hash", passwordHash)
	if res.Error != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update password hash").
			With("id", id.String()).
			Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Ping checks the database file is usable.
func (d *Directory) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return oops.Code("USER_STORE_UNREACHABLE").Wrap(err)
	}
	return nil
}

// Close closes the underlying database.
func (d *Directory) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// dsn appends the connection pragmas to path, which may already carry a
// query string.
func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + pragmas
	}
	return path + "?" + pragmas
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}
