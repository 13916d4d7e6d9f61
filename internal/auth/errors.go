// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Sentinel errors. Every error leaving this package wraps exactly one of
// them, so callers branch with errors.Is and never on message text.
var (
	// ErrNotFound is returned by a Directory when no record matches.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by Directory.CreateUnique when the email is taken.
	ErrAlreadyExists = errors.New("already exists")

	ErrUnauthorized = errors.New("invalid email or password")
	ErrEmailInUse   = errors.New("email already in use")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("service unavailable")
)

// Error codes attached to the sentinels above.
const (
	CodeUnauthorized = "AUTH_INVALID_CREDENTIALS"
	CodeEmailInUse   = "AUTH_EMAIL_IN_USE"
	CodeInvalidToken = "AUTH_INVALID_TOKEN"
	CodeInvalidInput = "AUTH_INVALID_INPUT"
	CodeUnavailable  = "AUTH_UNAVAILABLE"
)

// Kind is the coarse error taxonomy exposed to transports.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindUnauthorized
	KindConflict
	KindInvalidToken
	KindInvalidInput
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "invalid_credentials"
	case KindConflict:
		return "email_in_use"
	case KindInvalidToken:
		return "invalid_token"
	case KindInvalidInput:
		return "invalid_request"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// KindOf classifies err. Errors that carry none of the package sentinels are
// KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrEmailInUse):
		return KindConflict
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// unauthorized carries no context at all: every failed login looks the same.
func unauthorized() error {
	return oops.Code(CodeUnauthorized).Wrap(ErrUnauthorized)
}

func emailInUse() error {
	return oops.Code(CodeEmailInUse).Wrap(ErrEmailInUse)
}

func invalidInput(field, msg string) error {
	return oops.Code(CodeInvalidInput).With("field", field).Wrapf(ErrInvalidInput, "%s", msg)
}

// NewInvalidTokenError builds the error returned for any token that fails
// verification. reason is kept in the oops context for logs only.
func NewInvalidTokenError(reason string) error {
	return oops.Code(CodeInvalidToken).With("reason", reason).Wrap(ErrInvalidToken)
}

// unavailable records the cause as text so the returned chain holds no
// adapter error codes or driver types.
func unavailable(operation string, cause error) error {
	b := oops.Code(CodeUnavailable).With("operation", operation)
	if cause != nil {
		b = b.With("cause", cause.Error())
	}
	return b.Wrap(ErrUnavailable)
}
