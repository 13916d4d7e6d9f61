// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"net/mail"
	"strings"
)

// Input limits.
const (
	MaxEmailLength    = 254
	MaxPasswordLength = 1024
)

// NormalizeEmail returns the directory key for email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks an already normalized email. Display names and
// angle-bracket forms are rejected.
func ValidateEmail(email string) error {
	if email == "" {
		return invalidInput("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return invalidInput("email", "email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalidInput("email", "email is not a valid address")
	}
	return nil
}

// ValidatePassword checks plaintext length bounds only.
func ValidatePassword(password string) error {
	if password == "" {
		return invalidInput("password", "password is required")
	}
	if len(password) > MaxPasswordLength {
		return invalidInput("password", "password is too long")
	}
	return nil
}
