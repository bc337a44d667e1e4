// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a randomly salted one-way hash of the password. Two
	// calls on the same password yield different blobs; compare through
	// Verify, never by equality.
	Hash(password string) (string, error)

	// Verify reports whether the password matches the hash. A malformed
	// hash blob verifies as false, never as an error.
	Verify(hash, password string) bool
}

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher with the default cost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: bcrypt.DefaultCost}
}

// NewBcryptHasherWithCost creates a BcryptHasher with an explicit cost.
// Costs outside bcrypt's supported range fall back to the default.
func NewBcryptHasherWithCost(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash produces a salted bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return string(hash), nil
}

// Verify reports whether the password matches the hash. bcrypt parse
// failures on the stored blob count as a mismatch.
func (h *BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Compile-time interface check.
var _ PasswordHasher = (*BcryptHasher)(nil)
