// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth_test

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/gatewarden/gatewarden/internal/auth"
)

// mockUserStore implements auth.UserStore with overridable functions.
// Unset functions behave as an empty store.
type mockUserStore struct {
	createFn            func(ctx context.Context, user *auth.User) error
	getByIDFn           func(ctx context.Context, id ulid.ULID) (*auth.User, error)
	getByEmailFn        func(ctx context.Context, email string) (*auth.User, error)
	getBySessionHashFn  func(ctx context.Context, sessionHash string) (*auth.User, error)
	getByResetHashFn    func(ctx context.Context, resetHash string) (*auth.User, error)
	updateSessionHashFn func(ctx context.Context, id ulid.ULID, sessionHash *string) error
	updateResetHashFn   func(ctx context.Context, id ulid.ULID, resetHash *string) error
	replacePasswordFn   func(ctx context.Context, resetHash, passwordHash string) (ulid.ULID, error)
}

func (m *mockUserStore) Create(ctx context.Context, user *auth.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserStore) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, auth.ErrNotFound
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, auth.ErrNotFound
}

func (m *mockUserStore) GetBySessionHash(ctx context.Context, sessionHash string) (*auth.User, error) {
	if m.getBySessionHashFn != nil {
		return m.getBySessionHashFn(ctx, sessionHash)
	}
	return nil, auth.ErrNotFound
}

func (m *mockUserStore) GetByResetHash(ctx context.Context, resetHash string) (*auth.User, error) {
	if m.getByResetHashFn != nil {
		return m.getByResetHashFn(ctx, resetHash)
	}
	return nil, auth.ErrNotFound
}

func (m *mockUserStore) UpdateSessionHash(ctx context.Context, id ulid.ULID, sessionHash *string) error {
	if m.updateSessionHashFn != nil {
		return m.updateSessionHashFn(ctx, id, sessionHash)
	}
	return nil
}

func (m *mockUserStore) UpdateResetHash(ctx context.Context, id ulid.ULID, resetHash *string) error {
	if m.updateResetHashFn != nil {
		return m.updateResetHashFn(ctx, id, resetHash)
	}
	return nil
}

func (m *mockUserStore) ReplacePassword(ctx context.Context, resetHash, passwordHash string) (ulid.ULID, error) {
	if m.replacePasswordFn != nil {
		return m.replacePasswordFn(ctx, resetHash, passwordHash)
	}
	return ulid.ULID{}, auth.ErrNotFound
}

// memUserStore is an in-memory auth.UserStore with real semantics: unique
// emails, hash lookups, and an atomic ReplacePassword. Used for end-to-end
// flow tests without a database.
type memUserStore struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[ulid.ULID]*auth.User)}
}

func (s *memUserStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return auth.ErrDuplicateAccount
		}
	}
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *memUserStore) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memUserStore) GetBySessionHash(_ context.Context, sessionHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.SessionHash != nil && *u.SessionHash == sessionHash {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memUserStore) GetByResetHash(_ context.Context, resetHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ResetHash != nil && *u.ResetHash == resetHash {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memUserStore) UpdateSessionHash(_ context.Context, id ulid.ULID, sessionHash *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.SessionHash = sessionHash
	return nil
}

func (s *memUserStore) UpdateResetHash(_ context.Context, id ulid.ULID, resetHash *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.ResetHash = resetHash
	return nil
}

func (s *memUserStore) ReplacePassword(_ context.Context, resetHash, passwordHash string) (ulid.ULID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ResetHash != nil && *u.ResetHash == resetHash {
			u.PasswordHash = passwordHash
			u.ResetHash = nil
			return u.ID, nil
		}
	}
	return ulid.ULID{}, auth.ErrNotFound
}
