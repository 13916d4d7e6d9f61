// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package mocks provides testify mocks of the auth interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// MockDirectory is a mock of auth.Directory.
type MockDirectory struct {
	mock.Mock
}

// NewMockDirectory creates a MockDirectory whose expectations are asserted
// when the test ends.
func NewMockDirectory(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockDirectory {
	m := &MockDirectory{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// FindByEmail implements auth.Directory.
func (m *MockDirectory) FindByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.UserRecord)
	return user, args.Error(1)
}

// FindByID implements auth.Directory.
func (m *MockDirectory) FindByID(ctx context.Context, id ulid.ULID) (*auth.UserRecord, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.UserRecord)
	return user, args.Error(1)
}

// CreateUnique implements auth.Directory. The first return value may be a
// func(context.Context, *auth.UserRecord) *auth.UserRecord to echo the input.
func (m *MockDirectory) CreateUnique(ctx context.Context, user *auth.UserRecord) (*auth.UserRecord, error) {
	args := m.Called(ctx, user)
	if fn, ok := args.Get(0).(func(context.Context, *auth.UserRecord) *auth.UserRecord); ok {
		return fn(ctx, user), args.Error(1)
	}
	created, _ := args.Get(0).(*auth.UserRecord)
	return created, args.Error(1)
}

// UpdatePasswordHash implements auth.Directory.
func (m *MockDirectory) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

var _ auth.Directory = (*MockDirectory)(nil)
