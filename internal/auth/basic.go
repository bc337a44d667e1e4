// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"
)

// basicScheme is the literal prefix of a Basic Authorization header,
// including the single separating space.
const basicScheme = "Basic "

// Authenticator resolves a single piece of request evidence into a user.
// Evidence is an opaque string whose meaning depends on the implementation:
// an Authorization header for BasicAuthenticator, a session token for
// SessionAuthenticator. Implementations return ErrUnauthenticated for every
// failure mode that must stay indistinguishable to the caller; store I/O
// errors pass through unchanged.
type Authenticator interface {
	Authenticate(ctx context.Context, evidence string) (*User, error)
}

// DecodeBasicAuth parses a Basic Authorization header into a credential
// pair. Every stage short-circuits to ok=false without revealing which
// stage failed: wrong scheme, invalid base64, invalid UTF-8, and a missing
// colon are all the same outcome. The secret may itself contain colons;
// only the first one separates identifier from secret.
func DecodeBasicAuth(header string) (identifier, secret string, ok bool) {
	encoded, found := strings.CutPrefix(header, basicScheme)
	if !found {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", false
	}
	if !utf8.Valid(decoded) {
		return "", "", false
	}

	identifier, secret, found = strings.Cut(string(decoded), ":")
	if !found {
		return "", "", false
	}
	return identifier, secret, true
}

// BasicAuthenticator authenticates requests carrying a Basic Authorization
// header.
type BasicAuthenticator struct {
	users  UserStore
	hasher PasswordHasher
}

// NewBasicAuthenticator creates a BasicAuthenticator.
func NewBasicAuthenticator(users UserStore, hasher PasswordHasher) (*BasicAuthenticator, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("user store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("password hasher is required")
	}
	return &BasicAuthenticator{users: users, hasher: hasher}, nil
}

// Authenticate decodes the Authorization header, resolves the identifier,
// and verifies the secret against the stored password hash. Any decode,
// lookup, or verification failure yields ErrUnauthenticated.
func (a *BasicAuthenticator) Authenticate(ctx context.Context, header string) (*User, error) {
	email, password, ok := DecodeBasicAuth(header)
	if !ok {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrUnauthenticated)
	}

	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrUnauthenticated)
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	if !a.hasher.Verify(user.PasswordHash, password) {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrUnauthenticated)
	}

	return user, nil
}

// Compile-time interface check.
var _ Authenticator = (*BasicAuthenticator)(nil)
