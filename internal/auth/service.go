// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPasswordHash is verified when a login targets a nonexistent account,
// so the response time does not reveal whether the email exists. It is a
// well-formed bcrypt blob that never grants access; the verification result
// is discarded.
//
//nolint:gosec // G101: intentionally fake hash for timing normalization, not a credential.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service orchestrates registration, login, logout, and the password-reset
// flow. It holds the single-session policy by default; any SessionStore
// can be injected.
type Service struct {
	users    UserStore
	sessions SessionStore
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewService creates a Service using the default logger.
func NewService(users UserStore, sessions SessionStore, hasher PasswordHasher) (*Service, error) {
	return NewServiceWithLogger(users, sessions, hasher, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(users UserStore, sessions SessionStore, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("user store is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("session store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("logger is required")
	}
	return &Service{users: users, sessions: sessions, hasher: hasher, logger: logger}, nil
}

// Register creates a new account with a freshly hashed password and no
// session or reset token. Returns ErrDuplicateAccount if the email is
// taken; the store's unique constraint is the authority, so two concurrent
// registrations of the same email cannot both succeed.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	if password == "" {
		return nil, oops.Code("AUTH_INVALID_PASSWORD").
			Wrapf(ErrValidation, "password cannot be empty")
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(email, passwordHash)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return nil, err
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.Info("user registered",
		slog.String("user_id", user.ID.String()),
		slog.String("email", user.Email),
	)

	return user, nil
}

// Authenticate reports whether the email/password pair names a valid
// account. An unknown email and a wrong password are indistinguishable;
// only store I/O failures surface as errors.
func (s *Service) Authenticate(ctx context.Context, email, password string) (bool, error) {
	user, err := s.lookupForLogin(ctx, email, password)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// Login authenticates the credential pair and, only on success, issues a
// fresh session token under the configured policy. With the single-session
// store the new token displaces any prior one for the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.lookupForLogin(ctx, email, password)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrUnauthenticated)
	}

	token, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue session token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID.String()),
		slog.String("email", user.Email),
	)

	return token, nil
}

// lookupForLogin fetches the account and verifies the password, returning
// (nil, nil) for every authentication miss. The dummy verification keeps
// the unknown-email path as slow as the wrong-password path.
func (s *Service) lookupForLogin(ctx context.Context, email, password string) (*User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.hasher.Verify(dummyPasswordHash, password)
			return nil, nil
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, nil
	}
	return user, nil
}

// ResolveSession returns the user a session token stands for. An unknown
// token and a token whose user has vanished both yield ErrUnauthenticated.
func (s *Service) ResolveSession(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, oops.Code("AUTH_INVALID_SESSION").Wrap(ErrUnauthenticated)
	}

	userID, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_INVALID_SESSION").Wrap(ErrUnauthenticated)
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "resolve session token").
			Wrap(err)
	}

	user, err := s.users.GetByID(ctx, userID)
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

// Logout destroys every live session for the user. Idempotent: logging out
// a user with no session is a no-op, not an error.
func (s *Service) Logout(ctx context.Context, userID ulid.ULID) error {
	if err := s.sessions.DestroyAll(ctx, userID); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// IssueResetToken generates a fresh single-use reset token for the account
// with the given email and records its hash, overwriting any previous
// unconsumed token. Returns ErrUnknownAccount if no account has the email.
func (s *Service) IssueResetToken(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("RESET_UNKNOWN_ACCOUNT").Wrap(ErrUnknownAccount)
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	token, hash, err := GenerateToken()
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	if err := s.users.UpdateResetHash(ctx, user.ID, &hash); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "update reset hash").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.Info("reset token issued",
		slog.String("user_id", user.ID.String()),
	)

	return token, nil
}

// ApplyPasswordReset consumes a reset token: the new password hash is
// stored and the reset token cleared in one atomic store operation, so the
// token cannot be replayed. Returns ErrInvalidResetToken if no user
// currently holds the token.
func (s *Service) ApplyPasswordReset(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return oops.Code("AUTH_INVALID_PASSWORD").
			Wrapf(ErrValidation, "new password cannot be empty")
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_APPLY_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	userID, err := s.users.ReplacePassword(ctx, HashToken(token), passwordHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidResetToken)
		}
		return oops.Code("RESET_APPLY_FAILED").
			With("operation", "replace password").
			Wrap(err)
	}

	s.logger.Info("password reset applied",
		slog.String("user_id", userID.String()),
	)

	return nil
}
