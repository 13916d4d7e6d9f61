// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Upper bounds accepted when decoding a stored digest. A digest beyond these
// is treated as malformed instead of being computed.
const (
	maxDigestMemory     = 1 << 20 // KiB, 1 GiB
	maxDigestIterations = 64
	maxDigestKeyLength  = 1024
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted one-way digest of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches digest. A malformed or
	// unsupported digest never matches.
	Verify(password, digest string) bool

	// NeedsUpgrade reports whether digest was written by another algorithm
	// or other cost parameters and should be replaced.
	NeedsUpgrade(digest string) bool
}

// HashParams are the argon2id cost parameters. Memory is in KiB.
type HashParams struct {
	Memory      uint32 `koanf:"memory_kib"`
	Iterations  uint32 `koanf:"iterations"`
	Parallelism uint8  `koanf:"parallelism"`
	SaltLength  uint32 `koanf:"salt_length"`
	KeyLength   uint32 `koanf:"key_length"`
}

// DefaultHashParams returns the OWASP-recommended argon2id parameters.
func DefaultHashParams() HashParams {
	return HashParams{
		Memory:      64 * 1024,
		Iterations:  1,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate checks the parameters against argon2's own minimums.
func (p HashParams) Validate() error {
	switch {
	case p.Parallelism < 1:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("parallelism", p.Parallelism).Errorf("parallelism must be at least 1")
	case p.Iterations < 1 || p.Iterations > maxDigestIterations:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("iterations", p.Iterations).Errorf("iterations must be between 1 and %d", maxDigestIterations)
	case p.Memory < 8*uint32(p.Parallelism) || p.Memory > maxDigestMemory:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("memory_kib", p.Memory).Errorf("memory must be between 8*parallelism and %d KiB", maxDigestMemory)
	case p.SaltLength < 8:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("salt_length", p.SaltLength).Errorf("salt must be at least 8 bytes")
	case p.KeyLength < 16 || p.KeyLength > maxDigestKeyLength:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("key_length", p.KeyLength).Errorf("key length must be between 16 and %d bytes", maxDigestKeyLength)
	}
	return nil
}

// Argon2idHasher implements PasswordHasher using argon2id. It also verifies
// bcrypt digests written by earlier deployments; it never produces them.
type Argon2idHasher struct {
	params HashParams
}

// NewArgon2idHasher creates an Argon2idHasher with DefaultHashParams.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultHashParams()}
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with custom cost.
func NewArgon2idHasherWithParams(params HashParams) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Params returns the cost parameters new digests are written with.
func (h *Argon2idHasher) Params() HashParams {
	return h.params
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the digest.
func (h *Argon2idHasher) Verify(password, digest string) bool {
	if isBcrypt(digest) {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
	}

	params, salt, want, ok := decodeArgon2id(digest)
	if !ok {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// NeedsUpgrade returns true for bcrypt digests and for argon2id digests whose
// cost differs from h's. Verifying either costs a different amount of time
// than the decoy.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	if isBcrypt(digest) {
		return true
	}
	params, _, _, ok := decodeArgon2id(digest)
	if !ok {
		return true
	}
	return params.Memory != h.params.Memory ||
		params.Iterations != h.params.Iterations ||
		params.Parallelism != h.params.Parallelism ||
		params.KeyLength != h.params.KeyLength
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

func decodeArgon2id(digest string) (HashParams, []byte, []byte, bool) {
	var p HashParams

	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, false
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &threads); err != nil {
		return p, nil, nil, false
	}
	if threads < 1 || threads > 255 {
		return p, nil, nil, false
	}
	p.Parallelism = uint8(threads)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxDigestKeyLength {
		return p, nil, nil, false
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))

	if p.Iterations < 1 || p.Iterations > maxDigestIterations ||
		p.Memory < 8*uint32(p.Parallelism) || p.Memory > maxDigestMemory {
		return p, nil, nil, false
	}
	return p, salt, key, true
}

// NewDecoyDigest hashes random bytes with h. The result costs the same to
// verify as a real digest and matches no password.
func NewDecoyDigest(h PasswordHasher) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("AUTH_DECOY_FAILED").Wrap(err)
	}
	digest, err := h.Hash(base64.RawURLEncoding.EncodeToString(buf))
	if err != nil {
		return "", oops.Code("AUTH_DECOY_FAILED").Wrap(err)
	}
	return digest, nil
}
