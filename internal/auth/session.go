// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionStore records live session tokens and resolves them back to user
// IDs. Two policies implement it:
//
//   - SingleSessionStore: the token hash lives in the user row's single
//     session column; issuing a new session overwrites and thereby
//     invalidates any prior one for that user.
//   - MemoryRegistry / redisreg.Registry: a token registry allowing
//     multiple live tokens per user.
//
// The policies are mutually exclusive per deployment and selected by
// configuration, never mixed.
type SessionStore interface {
	// Issue generates a fresh unguessable token for the user and records
	// it. The returned token is the only copy of the plaintext.
	Issue(ctx context.Context, userID ulid.ULID) (string, error)

	// Resolve returns the user ID a token stands for, or ErrNotFound.
	Resolve(ctx context.Context, token string) (ulid.ULID, error)

	// Destroy removes a token. Reports true iff an entry existed and was
	// removed; an unknown token is (false, nil), not an error.
	Destroy(ctx context.Context, token string) (bool, error)

	// DestroyAll removes every live token for a user. Idempotent: a user
	// with no live tokens is a no-op.
	DestroyAll(ctx context.Context, userID ulid.ULID) error
}

// SingleSessionStore implements the single-session policy on top of the
// user store. The session column holds the SHA-256 hash of the token, so
// resolving hashes the presented token and looks the hash up.
type SingleSessionStore struct {
	users UserStore
}

// NewSingleSessionStore creates a SingleSessionStore.
func NewSingleSessionStore(users UserStore) (*SingleSessionStore, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("user store is required")
	}
	return &SingleSessionStore{users: users}, nil
}

// Issue generates a token and overwrites the user's session hash with it.
// Any prior session for the user stops resolving from this point on.
func (s *SingleSessionStore) Issue(ctx context.Context, userID ulid.ULID) (string, error) {
	token, hash, err := GenerateToken()
	if err != nil {
		return "", err
	}
	if err := s.users.UpdateSessionHash(ctx, userID, &hash); err != nil {
		return "", oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "update session hash").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return token, nil
}

// Resolve returns the ID of the user holding the token.
func (s *SingleSessionStore) Resolve(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	user, err := s.users.GetBySessionHash(ctx, HashToken(token))
	if err != nil {
		return ulid.ULID{}, err
	}
	return user.ID, nil
}

// Destroy clears the session column of whichever user holds the token.
func (s *SingleSessionStore) Destroy(ctx context.Context, token string) (bool, error) {
	user, err := s.users.GetBySessionHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.users.UpdateSessionHash(ctx, user.ID, nil); err != nil {
		return false, oops.Code("SESSION_DESTROY_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return true, nil
}

// DestroyAll clears the user's session column. Under this policy a user has
// at most one live session, so this is a single idempotent update.
func (s *SingleSessionStore) DestroyAll(ctx context.Context, userID ulid.ULID) error {
	if err := s.users.UpdateSessionHash(ctx, userID, nil); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// SessionAuthenticator authenticates requests carrying a session token.
type SessionAuthenticator struct {
	sessions SessionStore
	users    UserStore
}

// NewSessionAuthenticator creates a SessionAuthenticator.
func NewSessionAuthenticator(sessions SessionStore, users UserStore) (*SessionAuthenticator, error) {
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("session store is required")
	}
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("user store is required")
	}
	return &SessionAuthenticator{sessions: sessions, users: users}, nil
}

// Authenticate resolves a session token into its user. A missing token, an
// unknown token, and a token whose user has vanished all yield
// ErrUnauthenticated.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, oops.Code("AUTH_INVALID_SESSION").Wrap(ErrUnauthenticated)
	}

	userID, err := a.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_INVALID_SESSION").Wrap(ErrUnauthenticated)
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "resolve session token").
			Wrap(err)
	}

	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_INVALID_SESSION").Wrap(ErrUnauthenticated)
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}

	return user, nil
}

// Compile-time interface checks.
var (
	_ SessionStore  = (*SingleSessionStore)(nil)
	_ Authenticator = (*SessionAuthenticator)(nil)
)
