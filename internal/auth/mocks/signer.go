// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// MockTokenSigner is a mock of auth.TokenSigner.
type MockTokenSigner struct {
	mock.Mock
}

// NewMockTokenSigner creates a MockTokenSigner whose expectations are
// asserted when the test ends.
func NewMockTokenSigner(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockTokenSigner {
	m := &MockTokenSigner{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Issue implements auth.TokenSigner.
func (m *MockTokenSigner) Issue(claims auth.Claims, ttl time.Duration) (string, auth.Claims, error) {
	args := m.Called(claims, ttl)
	issued, _ := args.Get(1).(auth.Claims)
	return args.String(0), issued, args.Error(2)
}

// Verify implements auth.TokenSigner.
func (m *MockTokenSigner) Verify(token string) (auth.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(auth.Claims)
	return claims, args.Error(1)
}

var _ auth.TokenSigner = (*MockTokenSigner)(nil)
