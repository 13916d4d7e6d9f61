// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package token implements auth.TokenSigner with HS256 JSON Web Tokens.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// MinSecretLength is the shortest accepted HMAC secret, in bytes.
const MinSecretLength = 32

// DefaultLeeway is the clock skew tolerated on expiry.
const DefaultLeeway = 5 * time.Second

var errUnknownKey = errors.New("unknown signing key")

// Key is an HMAC secret and the id written to the token's kid header.
type Key struct {
	ID     string
	Secret []byte
}

// DeriveKey builds a Key whose id is a short digest of the secret, so the
// same secret gets the same kid across restarts and replicas.
func DeriveKey(secret []byte) Key {
	sum := sha256.Sum256(secret)
	return Key{ID: hex.EncodeToString(sum[:6]), Secret: secret}
}

func (k Key) validate() error {
	if k.ID == "" {
		return oops.Code("TOKEN_KEY_INVALID").Errorf("key id is required")
	}
	if len(k.Secret) < MinSecretLength {
		return oops.Code("TOKEN_KEY_INVALID").
			With("key_id", k.ID).
			Errorf("secret must be at least %d bytes", MinSecretLength)
	}
	return nil
}

// keySet is never mutated after it is published.
type keySet struct {
	signing Key
	verify  map[string][]byte
}

func newKeySet(signing Key, verifyOnly []Key) *keySet {
	ks := &keySet{signing: signing, verify: make(map[string][]byte, len(verifyOnly)+1)}
	for _, k := range verifyOnly {
		ks.verify[k.ID] = k.Secret
	}
	ks.verify[signing.ID] = signing.Secret
	return ks
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Kind auth.TokenKind `json:"knd"`
}

// Signer signs and verifies tokens. It is safe for concurrent use, including
// concurrent SetKeys.
type Signer struct {
	keys   atomic.Pointer[keySet]
	issuer string
	leeway time.Duration
	now    func() time.Time
}

type config struct {
	issuer     string
	leeway     time.Duration
	now        func() time.Time
	verifyOnly []Key
}

// Option configures a Signer.
type Option func(*config)

// WithIssuer sets the iss claim and requires it on verification.
func WithIssuer(issuer string) Option {
	return func(c *config) { c.issuer = issuer }
}

// WithLeeway sets the clock skew tolerated on expiry.
func WithLeeway(d time.Duration) Option {
	return func(c *config) { c.leeway = d }
}

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithVerifyOnlyKeys accepts tokens signed by retired keys.
func WithVerifyOnlyKeys(keys ...Key) Option {
	return func(c *config) { c.verifyOnly = append(c.verifyOnly, keys...) }
}

// New creates a Signer that signs with signing.
func New(signing Key, opts ...Option) (*Signer, error) {
	cfg := config{leeway: DefaultLeeway, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := signing.validate(); err != nil {
		return nil, err
	}
	for _, k := range cfg.verifyOnly {
		if err := k.validate(); err != nil {
			return nil, err
		}
		if k.ID == signing.ID {
			return nil, oops.Code("TOKEN_KEY_INVALID").With("key_id", k.ID).Errorf("verify-only key reuses the signing key id")
		}
	}
	if cfg.leeway < 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("leeway cannot be negative")
	}

	s := &Signer{issuer: cfg.issuer, leeway: cfg.leeway, now: cfg.now}
	s.keys.Store(newKeySet(signing, cfg.verifyOnly))
	return s, nil
}

// KeyID returns the id of the key currently signing.
func (s *Signer) KeyID() string {
	return s.keys.Load().signing.ID
}

// SetKeys publishes signing and verifyOnly as the complete key set. When
// signing replaces the current signing key, the outgoing key keeps verifying.
// Any other key not listed stops verifying. Readers see either the old or the
// new key set, never a mix. It reports whether the signing key changed.
func (s *Signer) SetKeys(signing Key, verifyOnly []Key) (bool, error) {
	if err := signing.validate(); err != nil {
		return false, err
	}
	for _, k := range verifyOnly {
		if err := k.validate(); err != nil {
			return false, err
		}
	}
	for {
		old := s.keys.Load()
		retired := verifyOnly
		rotated := signing.ID != old.signing.ID
		if rotated {
			retired = append(slices.Clone(verifyOnly), old.signing)
		}
		if s.keys.CompareAndSwap(old, newKeySet(signing, retired)) {
			return rotated, nil
		}
	}
}

// VerifyKeyIDs returns the ids of every key that verifies, sorted.
func (s *Signer) VerifyKeyIDs() []string {
	ks := s.keys.Load()
	ids := make([]string, 0, len(ks.verify))
	for id := range ks.verify {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Issue implements auth.TokenSigner. Times are truncated to whole seconds.
func (s *Signer) Issue(claims auth.Claims, ttl time.Duration) (string, auth.Claims, error) {
	if claims.Subject == "" {
		return "", auth.Claims{}, oops.Code("TOKEN_ISSUE_FAILED").Errorf("subject is required")
	}
	if !claims.Kind.Valid() {
		return "", auth.Claims{}, oops.Code("TOKEN_ISSUE_FAILED").With("kind", claims.Kind).Errorf("unknown token kind")
	}
	if claims.IssuedAt.IsZero() {
		claims.IssuedAt = s.now()
	}
	claims.IssuedAt = claims.IssuedAt.UTC().Truncate(time.Second)
	claims.ExpiresAt = claims.IssuedAt.Add(ttl).Truncate(time.Second)
	if claims.ID == "" {
		claims.ID = ulid.Make().String()
	}

	ks := s.keys.Load()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   claims.Subject,
			ID:        claims.ID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
		Kind: claims.Kind,
	})
	tok.Header["kid"] = ks.signing.ID

	signed, err := tok.SignedString(ks.signing.Secret)
	if err != nil {
		return "", auth.Claims{}, oops.Code("TOKEN_ISSUE_FAILED").With("key_id", ks.signing.ID).Wrap(err)
	}
	return signed, claims, nil
}

// Verify implements auth.TokenSigner. Leeway applies to expiry only; a token
// whose expiry is not after its issue time is always rejected.
func (s *Signer) Verify(raw string) (auth.Claims, error) {
	ks := s.keys.Load()

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var c jwtClaims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		secret, ok := ks.verify[kid]
		if !ok {
			return nil, errUnknownKey
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return auth.Claims{}, auth.NewInvalidTokenError(rejectReason(err))
	}
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return auth.Claims{}, auth.NewInvalidTokenError("missing time claims")
	}

	claims := auth.Claims{
		Subject:   c.Subject,
		Kind:      c.Kind,
		ID:        c.ID,
		IssuedAt:  c.IssuedAt.UTC(),
		ExpiresAt: c.ExpiresAt.UTC(),
	}
	if err := claims.Validate(); err != nil {
		return auth.Claims{}, auth.NewInvalidTokenError("invalid claims")
	}
	return claims, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, errUnknownKey):
		return "unknown key"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing claim"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "wrong issuer"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	default:
		return "invalid"
	}
}

var _ auth.TokenSigner = (*Signer)(nil)
