// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/token"
)

var testSession = auth.SessionConfig{AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour}

// cheapParams keeps argon2id fast enough for unit tests.
var cheapParams = auth.HashParams{Memory: 256, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func cheapHasher(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasherWithParams(cheapParams)
	require.NoError(t, err)
	return h
}

func testSigner(t *testing.T, opts ...token.Option) *token.Signer {
	t.Helper()
	s, err := token.New(token.Key{ID: "test", Secret: []byte("test-secret-test-secret-test-sec")}, opts...)
	require.NoError(t, err)
	return s
}
