// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/memory"
	"github.com/gatehouse/gatehouse/internal/auth/mocks"
	"github.com/gatehouse/gatehouse/internal/auth/token"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

type serviceFixture struct {
	svc    *auth.Service
	dir    *memory.Directory
	signer *token.Signer
	now    time.Time
	logs   *bytes.Buffer
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		dir:  memory.NewDirectory(),
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		logs: &bytes.Buffer{},
	}
	clock := func() time.Time { return f.now }
	f.signer = testSigner(t, token.WithClock(clock))

	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc, err := auth.NewService(f.dir, cheapHasher(t), f.signer, testSession,
		auth.WithClock(clock),
		auth.WithLogger(logger),
		auth.WithHashLimiter(auth.NewHashLimiter(2, nil)),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewService_NilDependencies(t *testing.T) {
	dir := memory.NewDirectory()
	hasher := cheapHasher(t)
	signer := testSigner(t)

	tests := []struct {
		name        string
		users       auth.Directory
		hasher      auth.PasswordHasher
		tokens      auth.TokenSigner
		expectError string
	}{
		{"nil directory", nil, hasher, signer, "user directory is required"},
		{"nil hasher", dir, nil, signer, "password hasher is required"},
		{"nil signer", dir, hasher, nil, "token signer is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(tt.users, tt.hasher, tt.tokens, testSession)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}

	t.Run("invalid session config", func(t *testing.T) {
		_, err := auth.NewService(dir, hasher, signer, auth.SessionConfig{AccessTTL: time.Hour, RefreshTTL: time.Minute})
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CONFIG")
	})
}

func TestService_SignupLoginScenario(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	view, err := f.svc.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", view.Email)

	_, err = f.svc.Signup(ctx, "a@x.com", "pw2")
	assert.ErrorIs(t, err, auth.ErrEmailInUse)
	assert.Equal(t, auth.KindConflict, auth.KindOf(err))

	user, pair, err := f.svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	assert.Equal(t, view.ID, user.ID.String())
	assert.Equal(t, "a@x.com", user.Email)

	access, err := f.signer.Verify(pair.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenAccess, access.Kind)
	assert.Equal(t, view.ID, access.Subject)

	refresh, err := f.signer.Verify(pair.Refresh.Value)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenRefresh, refresh.Kind)
	assert.True(t, pair.Refresh.Restricted)

	_, _, err = f.svc.Login(ctx, "a@x.com", "pw2")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.Equal(t, auth.KindUnauthorized, auth.KindOf(err))
}

func TestService_LoginNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	_, err := f.svc.Signup(ctx, "Mixed.Case@X.com", "pw1")
	require.NoError(t, err)

	user, _, err := f.svc.Login(ctx, "  MIXED.case@x.COM", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "mixed.case@x.com", user.Email)
}

func TestService_GhostLoginMatchesWrongPassword(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	_, err := f.svc.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	_, ghostPair, ghostErr := f.svc.Login(ctx, "ghost@x.com", "pw1")
	_, wrongPair, wrongErr := f.svc.Login(ctx, "a@x.com", "nope")

	assert.Nil(t, ghostPair)
	assert.Nil(t, wrongPair)
	assert.ErrorIs(t, ghostErr, auth.ErrUnauthorized)
	assert.Equal(t, wrongErr.Error(), ghostErr.Error())
	errutil.AssertErrorCode(t, ghostErr, auth.CodeUnauthorized)
	errutil.AssertErrorCode(t, wrongErr, auth.CodeUnauthorized)
}

func TestService_NeverLogsSecrets(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	_, err := f.svc.Signup(ctx, "a@x.com", "hunter2-secret")
	require.NoError(t, err)
	_, pair, err := f.svc.Login(ctx, "a@x.com", "hunter2-secret")
	require.NoError(t, err)
	_, _, err = f.svc.Login(ctx, "a@x.com", "wrong-secret")
	require.Error(t, err)

	logs := f.logs.String()
	assert.NotEmpty(t, logs)
	assert.NotContains(t, logs, "hunter2-secret")
	assert.NotContains(t, logs, "wrong-secret")
	assert.NotContains(t, logs, "argon2id")
	assert.NotContains(t, logs, pair.Access.Value)
	assert.NotContains(t, logs, pair.Refresh.Value)
}

func TestService_Refresh(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	_, err := f.svc.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	user, pair, err := f.svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	t.Run("access token cannot refresh", func(t *testing.T) {
		_, _, err := f.svc.Refresh(ctx, pair.Access.Value)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
		errutil.AssertErrorContext(t, err, "reason", "wrong token kind")
	})

	t.Run("refresh token yields a new pair", func(t *testing.T) {
		f.now = f.now.Add(20 * time.Minute)

		refreshed, next, err := f.svc.Refresh(ctx, pair.Refresh.Value)
		require.NoError(t, err)
		assert.Equal(t, user.ID, refreshed.ID)
		assert.NotEqual(t, pair.Access.Value, next.Access.Value)
		assert.True(t, next.Access.ExpiresAt.After(pair.Access.ExpiresAt))
	})

	t.Run("garbage is invalid", func(t *testing.T) {
		_, _, err := f.svc.Refresh(ctx, "garbage")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("expired refresh token is invalid", func(t *testing.T) {
		f.now = f.now.Add(testSession.RefreshTTL)
		_, _, err := f.svc.Refresh(ctx, pair.Refresh.Value)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}

func TestService_RefreshUnknownSubject(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	raw, _, err := f.signer.Issue(auth.Claims{Subject: ulid.Make().String(), Kind: auth.TokenRefresh}, time.Hour)
	require.NoError(t, err)
	_, _, err = f.svc.Refresh(ctx, raw)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	errutil.AssertErrorContext(t, err, "reason", "unknown subject")

	raw, _, err = f.signer.Issue(auth.Claims{Subject: "a@x.com", Kind: auth.TokenRefresh}, time.Hour)
	require.NoError(t, err)
	_, _, err = f.svc.Refresh(ctx, raw)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	errutil.AssertErrorContext(t, err, "reason", "malformed subject")
}

func TestService_RefreshDirectoryDown(t *testing.T) {
	ctx := context.Background()
	users := mocks.NewMockDirectory(t)
	signer := testSigner(t)
	svc, err := auth.NewService(users, cheapHasher(t), signer, testSession)
	require.NoError(t, err)

	id := ulid.Make()
	raw, _, err := signer.Issue(auth.Claims{Subject: id.String(), Kind: auth.TokenRefresh}, time.Hour)
	require.NoError(t, err)
	users.On("FindByID", ctx, id).Return(nil, errors.New("connection reset"))

	_, _, err = svc.Refresh(ctx, raw)
	assert.ErrorIs(t, err, auth.ErrUnavailable)
}

func TestService_AuthenticateAndCurrentUser(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	view, err := f.svc.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	_, pair, err := f.svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	claims, err := f.svc.Authenticate(ctx, pair.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, view.ID, claims.Subject)

	_, err = f.svc.Authenticate(ctx, pair.Refresh.Value)
	assert.ErrorIs(t, err, auth.ErrInvalidToken, "refresh tokens are not accepted as access tokens")

	user, err := f.svc.CurrentUser(ctx, pair.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, view.Email, user.Email)

	_, err = f.svc.CurrentUser(ctx, pair.Refresh.Value)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
