// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth verifies credentials and issues tokens.
//
// # Capabilities
//
// The package depends on three interfaces and ships one implementation of
// the first:
//   - PasswordHasher - Argon2idHasher (argon2id, verifies legacy bcrypt)
//   - TokenSigner - see package token for the JWT implementation
//   - Directory - see packages postgres, sqlite and memory
//
// # Services
//
//   - CredentialVerifier - email and password to UserRecord, or ErrUnauthorized
//   - SessionIssuer - UserRecord to IssuedTokenPair
//   - SignupOrchestrator - email and password to UserView, or ErrEmailInUse
//   - Service - the facade used by transports (Signup, Login, Refresh, Authenticate)
//
// Constructors validate their dependencies and return an error when one is
// missing.
//
// # Errors
//
// Every returned error wraps one sentinel (ErrUnauthorized, ErrEmailInUse,
// ErrInvalidToken, ErrInvalidInput, ErrUnavailable) and carries the matching
// oops code. KindOf maps an error to its Kind for transports. Which check
// failed during login is never part of the returned error.
//
// Tokens are stateless. A token stays valid until it expires; there is no
// server-side revocation.
package auth
