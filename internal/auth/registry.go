// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MemoryRegistry implements the multi-session policy with an in-process
// token registry. Multiple live tokens per user are allowed. The map is
// guarded by a mutex so Issue, Resolve, and Destroy are linearizable with
// respect to each other.
//
// The registry's lifetime is tied to whatever owns it; it is injected, not
// process-global.
type MemoryRegistry struct {
	mu     sync.Mutex
	byUser map[ulid.ULID]map[string]struct{}
	users  map[string]ulid.ULID
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byUser: make(map[ulid.ULID]map[string]struct{}),
		users:  make(map[string]ulid.ULID),
	}
}

// Issue generates a random, globally unique token and records it for the
// user. UUIDv4 draws from crypto/rand; the collision check keeps uniqueness
// unconditional rather than probabilistic.
func (r *MemoryRegistry) Issue(_ context.Context, userID ulid.ULID) (string, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return "", oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	token := uuid.NewString()
	for {
		if _, exists := r.users[token]; !exists {
			break
		}
		token = uuid.NewString()
	}

	r.users[token] = userID
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]struct{})
	}
	r.byUser[userID][token] = struct{}{}

	return token, nil
}

// Resolve returns the user ID a token stands for.
func (r *MemoryRegistry) Resolve(_ context.Context, token string) (ulid.ULID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.users[token]
	if !ok {
		return ulid.ULID{}, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	return userID, nil
}

// Destroy removes a token. Reports true iff an entry existed.
func (r *MemoryRegistry) Destroy(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.users[token]
	if !ok {
		return false, nil
	}
	delete(r.users, token)
	delete(r.byUser[userID], token)
	if len(r.byUser[userID]) == 0 {
		delete(r.byUser, userID)
	}
	return true, nil
}

// DestroyAll removes every live token for a user.
func (r *MemoryRegistry) DestroyAll(_ context.Context, userID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token := range r.byUser[userID] {
		delete(r.users, token)
	}
	delete(r.byUser, userID)
	return nil
}

// Len reports the number of live tokens across all users.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Compile-time interface check.
var _ SessionStore = (*MemoryRegistry)(nil)
