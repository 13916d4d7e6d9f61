// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// TokenType is the scheme access tokens are presented with.
const TokenType = "Bearer"

// Credential is one signed token plus its delivery constraint.
type Credential struct {
	Value     string
	ExpiresAt time.Time
	// Restricted credentials must only travel over a channel scripts cannot
	// read, such as an HttpOnly cookie, and never appear in a response body.
	Restricted bool
}

// String never reveals the token.
func (c Credential) String() string {
	return "[REDACTED]"
}

// LogValue implements slog.LogValuer without the token value.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("expires_at", c.ExpiresAt),
		slog.Bool("restricted", c.Restricted),
	)
}

// IssuedTokenPair is the result of a successful login or refresh.
type IssuedTokenPair struct {
	Access  Credential
	Refresh Credential
}

// InBandTokens is the part of an IssuedTokenPair that may appear in a
// response body. Restricted credentials are left empty.
type InBandTokens struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// InBand returns the unrestricted credentials of p.
func (p IssuedTokenPair) InBand() InBandTokens {
	out := InBandTokens{TokenType: TokenType, ExpiresAt: p.Access.ExpiresAt}
	if !p.Access.Restricted {
		out.AccessToken = p.Access.Value
	}
	if !p.Refresh.Restricted {
		out.RefreshToken = p.Refresh.Value
	}
	return out
}

// MarshalJSON encodes InBand, so restricted credentials never serialize.
func (p IssuedTokenPair) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.InBand())
}

// SessionConfig holds token lifetimes.
type SessionConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Validate requires whole-second, positive lifetimes with refresh outliving access.
func (c SessionConfig) Validate() error {
	if c.AccessTTL < time.Second {
		return oops.Code("AUTH_INVALID_CONFIG").With("access_ttl", c.AccessTTL.String()).Errorf("access ttl must be at least 1s")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return oops.Code("AUTH_INVALID_CONFIG").
			With("access_ttl", c.AccessTTL.String()).
			With("refresh_ttl", c.RefreshTTL.String()).
			Errorf("refresh ttl must be longer than access ttl")
	}
	return nil
}

// SessionIssuer mints token pairs for verified users. It stores nothing.
type SessionIssuer struct {
	tokens TokenSigner
	cfg    SessionConfig
	now    func() time.Time
}

// NewSessionIssuer creates a SessionIssuer.
func NewSessionIssuer(tokens TokenSigner, cfg SessionConfig, opts ...Option) (*SessionIssuer, error) {
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token signer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &SessionIssuer{tokens: tokens, cfg: cfg, now: o.now}, nil
}

// IssueSession signs an access and a refresh token for user. The subject of
// both is the user ID, so tokens survive an email change.
func (s *SessionIssuer) IssueSession(user *UserRecord) (*IssuedTokenPair, error) {
	if user == nil {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("user is required")
	}
	issuedAt := s.now().UTC().Truncate(time.Second)
	subject := user.ID.String()

	access, accessClaims, err := s.tokens.Issue(Claims{Subject: subject, Kind: TokenAccess, IssuedAt: issuedAt}, s.cfg.AccessTTL)
	if err != nil {
		return nil, unavailable("sign access token", err)
	}
	refresh, refreshClaims, err := s.tokens.Issue(Claims{Subject: subject, Kind: TokenRefresh, IssuedAt: issuedAt}, s.cfg.RefreshTTL)
	if err != nil {
		return nil, unavailable("sign refresh token", err)
	}

	return &IssuedTokenPair{
		Access:  Credential{Value: access, ExpiresAt: accessClaims.ExpiresAt},
		Refresh: Credential{Value: refresh, ExpiresAt: refreshClaims.ExpiresAt, Restricted: true},
	}, nil
}
