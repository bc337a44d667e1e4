// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User represents a registered account.
//
// SessionHash and ResetHash hold SHA-256 hashes of the live session token
// and the outstanding reset token. Either is nil when no such token exists.
// At most one live session token is recorded here at any time; the
// multi-session registry tracks its tokens independently of this record.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	SessionHash  *string
	ResetHash    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a validated User with a freshly hashed password and no
// session or reset token. The email is normalized to lower case.
func NewUser(email, passwordHash string) (*User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_USER").
			Wrapf(ErrValidation, "password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Email:        normalized,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail validates an email address and returns it trimmed and
// lower-cased. Rejects empty and syntactically invalid addresses.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", oops.Code("AUTH_INVALID_EMAIL").
			Wrapf(ErrValidation, "email cannot be empty")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", oops.Code("AUTH_INVALID_EMAIL").
			With("email", trimmed).
			Wrapf(ErrValidation, "malformed email address")
	}
	return trimmed, nil
}

// UserStore is the persistence contract for user records. Implementations
// enforce email uniqueness with a storage-level constraint and perform each
// find-then-update as a single atomic statement; callers never rely on
// check-then-act sequences.
//
// Store I/O failures propagate as-is. They are never folded into
// ErrUnauthenticated.
type UserStore interface {
	// Create stores a new user. Returns ErrDuplicateAccount if the email
	// is already taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetBySessionHash retrieves the user holding the given session token
	// hash.
	GetBySessionHash(ctx context.Context, sessionHash string) (*User, error)

	// GetByResetHash retrieves the user holding the given reset token hash.
	GetByResetHash(ctx context.Context, resetHash string) (*User, error)

	// UpdateSessionHash replaces the user's session token hash. A nil hash
	// clears it; clearing an already-empty field is not an error.
	UpdateSessionHash(ctx context.Context, id ulid.ULID, sessionHash *string) error

	// UpdateResetHash replaces the user's reset token hash. A nil hash
	// clears it. Issuing over an unconsumed token overwrites it.
	UpdateResetHash(ctx context.Context, id ulid.ULID, resetHash *string) error

	// ReplacePassword sets a new password hash and clears the reset hash
	// in one atomic statement, keyed on the current reset hash. Returns
	// the updated user's ID, or ErrNotFound if no user holds resetHash.
	ReplacePassword(ctx context.Context, resetHash, passwordHash string) (ulid.ULID, error)
}
