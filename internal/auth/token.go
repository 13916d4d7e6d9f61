// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// TokenKind distinguishes access from refresh tokens.
type TokenKind string

// Token kinds.
const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	return k == TokenAccess || k == TokenRefresh
}

// Claims are the verified contents of a token.
type Claims struct {
	Subject   string
	Kind      TokenKind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Validate checks the structural invariants every token must satisfy,
// independent of the clock.
func (c Claims) Validate() error {
	switch {
	case c.Subject == "":
		return oops.Code("TOKEN_INVALID_CLAIMS").Errorf("subject is required")
	case !c.Kind.Valid():
		return oops.Code("TOKEN_INVALID_CLAIMS").With("kind", c.Kind).Errorf("unknown token kind")
	case c.IssuedAt.IsZero() || c.ExpiresAt.IsZero():
		return oops.Code("TOKEN_INVALID_CLAIMS").Errorf("issued and expiry times are required")
	case !c.ExpiresAt.After(c.IssuedAt):
		return oops.Code("TOKEN_INVALID_CLAIMS").Errorf("token expires before it was issued")
	}
	return nil
}

// TokenSigner issues and verifies signed, time-bounded tokens.
type TokenSigner interface {
	// Issue signs claims valid for ttl. Zero IssuedAt and ID are filled in;
	// the returned Claims are exactly what the token carries.
	Issue(claims Claims, ttl time.Duration) (string, Claims, error)

	// Verify returns the token's claims or an error wrapping ErrInvalidToken.
	Verify(token string) (Claims, error)
}
