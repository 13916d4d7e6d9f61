// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher whose expectations are
// asserted when the test ends.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash implements auth.PasswordHasher.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify implements auth.PasswordHasher.
func (m *MockPasswordHasher) Verify(password, digest string) bool {
	args := m.Called(password, digest)
	return args.Bool(0)
}

// NeedsUpgrade implements auth.PasswordHasher.
func (m *MockPasswordHasher) NeedsUpgrade(digest string) bool {
	args := m.Called(digest)
	return args.Bool(0)
}

var _ auth.PasswordHasher = (*MockPasswordHasher)(nil)
