// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Service is the entry point transports call.
type Service struct {
	users    Directory
	tokens   TokenSigner
	verifier *CredentialVerifier
	issuer   *SessionIssuer
	signup   *SignupOrchestrator
	logger   *slog.Logger
}

// NewService wires the verifier, issuer and signup orchestrator over one
// directory, hasher and signer.
func NewService(users Directory, hasher PasswordHasher, tokens TokenSigner, session SessionConfig, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("user directory is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token signer is required")
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	verifier, err := NewCredentialVerifier(users, hasher, opts...)
	if err != nil {
		return nil, err
	}
	issuer, err := NewSessionIssuer(tokens, session, opts...)
	if err != nil {
		return nil, err
	}
	signup, err := NewSignupOrchestrator(users, hasher, opts...)
	if err != nil {
		return nil, err
	}

	return &Service{
		users:    users,
		tokens:   tokens,
		verifier: verifier,
		issuer:   issuer,
		signup:   signup,
		logger:   o.logger,
	}, nil
}

// Signup registers a user and returns its public view.
func (s *Service) Signup(ctx context.Context, email, password string) (*UserView, error) {
	return s.signup.Signup(ctx, email, password)
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*UserRecord, *IssuedTokenPair, error) {
	user, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.issuer.IssueSession(user)
	if err != nil {
		return nil, nil, err
	}
	s.logger.InfoContext(ctx, "login succeeded", "user", user)
	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a new pair. The presented
// token is not consumed and stays valid until it expires.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*UserRecord, *IssuedTokenPair, error) {
	user, err := s.userFromToken(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.issuer.IssueSession(user)
	if err != nil {
		return nil, nil, err
	}
	s.logger.InfoContext(ctx, "session refreshed", "user", user)
	return user, pair, nil
}

// Authenticate verifies an access token.
func (s *Service) Authenticate(_ context.Context, accessToken string) (Claims, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return Claims{}, asInvalidToken(err)
	}
	if claims.Kind != TokenAccess {
		return Claims{}, NewInvalidTokenError("wrong token kind")
	}
	return claims, nil
}

// CurrentUser verifies an access token and loads its subject.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*UserRecord, error) {
	return s.userFromToken(ctx, accessToken, TokenAccess)
}

func (s *Service) userFromToken(ctx context.Context, token string, kind TokenKind) (*UserRecord, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, asInvalidToken(err)
	}
	if claims.Kind != kind {
		return nil, NewInvalidTokenError("wrong token kind")
	}
	id, err := ulid.ParseStrict(claims.Subject)
	if err != nil {
		return nil, NewInvalidTokenError("malformed subject")
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewInvalidTokenError("unknown subject")
		}
		return nil, unavailable("find user by id", err)
	}
	return user, nil
}

// asInvalidToken passes through errors already in the taxonomy and folds
// anything else a signer returns into ErrInvalidToken.
func asInvalidToken(err error) error {
	if errors.Is(err, ErrInvalidToken) {
		return err
	}
	return NewInvalidTokenError("verification failed")
}
