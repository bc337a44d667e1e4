// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package postgres provides the PostgreSQL implementation of auth.UserStore.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatewarden/gatewarden/internal/auth"
)

// querier is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock connection.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserStore implements auth.UserStore using PostgreSQL.
type UserStore struct {
	db querier
}

// NewUserStore creates a new UserStore.
func NewUserStore(db querier) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, password_hash, session_hash, reset_hash, created_at, updated_at`

// Create stores a new user. The unique index on the email column is the
// authority for duplicate detection: a violation maps to
// auth.ErrDuplicateAccount, so concurrent registrations cannot race past a
// check-then-act window.
func (s *UserStore) Create(ctx context.Context, user *auth.User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, session_hash, reset_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.SessionHash,
		user.ResetHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_DUPLICATE_EMAIL").
				With("email", user.Email).
				Wrap(auth.ErrDuplicateAccount)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (s *UserStore) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// GetBySessionHash retrieves the user holding the given session token hash.
func (s *UserStore) GetBySessionHash(ctx context.Context, sessionHash string) (*auth.User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE session_hash = $1
	`, sessionHash)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_SESSION_FAILED").
			With("operation", "get user by session hash").
			Wrap(err)
	}
	return user, nil
}

// GetByResetHash retrieves the user holding the given reset token hash.
func (s *UserStore) GetByResetHash(ctx context.Context, resetHash string) (*auth.User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE reset_hash = $1
	`, resetHash)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_RESET_FAILED").
			With("operation", "get user by reset hash").
			Wrap(err)
	}
	return user, nil
}

// UpdateSessionHash replaces the user's session token hash; nil clears it.
// Clearing an already-empty column still affects the row, so logout stays
// idempotent.
func (s *UserStore) UpdateSessionHash(ctx context.Context, id ulid.ULID, sessionHash *string) error {
	result, err := s.db.Exec(ctx, `
		UPDATE users SET session_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), sessionHash, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_SESSION_FAILED").
			With("operation", "update session hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdateResetHash replaces the user's reset token hash; nil clears it.
func (s *UserStore) UpdateResetHash(ctx context.Context, id ulid.ULID, resetHash *string) error {
	result, err := s.db.Exec(ctx, `
		UPDATE users SET reset_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), resetHash, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_RESET_FAILED").
			With("operation", "update reset hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ReplacePassword sets the new password hash and clears the reset hash in
// a single conditional UPDATE keyed on the current reset hash. Exactly one
// of two concurrent consumers of the same token can win; the loser sees
// auth.ErrNotFound.
func (s *UserStore) ReplacePassword(ctx context.Context, resetHash, passwordHash string) (ulid.ULID, error) {
	var idStr string
	err := s.db.QueryRow(ctx, `
		UPDATE users SET password_hash = $2, reset_hash = NULL, updated_at = $3
		WHERE reset_hash = $1
		RETURNING id
	`, resetHash, passwordHash, time.Now().UTC()).Scan(&idStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return ulid.ULID{}, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return ulid.ULID{}, oops.Code("USER_REPLACE_PASSWORD_FAILED").
			With("operation", "replace password").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return ulid.ULID{}, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	return id, nil
}

// scanUser scans a single row into a User. Callers are responsible for
// handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr        string
		email        string
		passwordHash string
		sessionHash  *string
		resetHash    *string
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(&idStr, &email, &passwordHash, &sessionHash, &resetHash, &createdAt, &updatedAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		SessionHash:  sessionHash,
		ResetHash:    resetHash,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserStore = (*UserStore)(nil)
