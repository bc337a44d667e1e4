// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when a required input field is missing or
	// malformed.
	ErrValidation = errors.New("invalid input")

	// ErrUnauthenticated covers every authentication failure: unknown
	// account, wrong password, malformed header, missing or stale session
	// token. The categories are intentionally indistinguishable.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrDuplicateAccount is returned when registering an email that is
	// already taken.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrUnknownAccount is returned when requesting a password reset for
	// an email no account has. Unlike login, the reset-request surface is
	// allowed to disclose existence.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrInvalidResetToken is returned when applying a password reset with
	// a token no user currently holds, including tokens already consumed.
	ErrInvalidResetToken = errors.New("invalid reset token")
)
