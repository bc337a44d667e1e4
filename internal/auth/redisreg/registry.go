// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package redisreg provides a Redis-backed implementation of the
// multi-session auth.SessionStore, for deployments where sessions must
// survive process restarts or be shared across replicas.
package redisreg

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/gatewarden/gatewarden/internal/auth"
)

const (
	// tokenKeyPrefix is the Redis key prefix for token -> user ID entries.
	tokenKeyPrefix = "session:"

	// userKeyPrefix is the Redis key prefix for the per-user token set,
	// kept so DestroyAll does not have to scan the keyspace.
	userKeyPrefix = "user_sessions:"
)

// Registry implements the multi-session policy on Redis. Multiple live
// tokens per user are allowed; each token entry carries the configured TTL.
type Registry struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRegistry creates a Registry. A zero ttl means tokens never expire.
func NewRegistry(rdb *redis.Client, ttl time.Duration) (*Registry, error) {
	if rdb == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("redis client is required")
	}
	return &Registry{rdb: rdb, ttl: ttl}, nil
}

// Issue generates a random token and records it for the user.
func (r *Registry) Issue(ctx context.Context, userID ulid.ULID) (string, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return "", oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}

	token, _, err := auth.GenerateToken()
	if err != nil {
		return "", err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, tokenKeyPrefix+token, userID.String(), r.ttl)
	pipe.SAdd(ctx, userKeyPrefix+userID.String(), token)
	if r.ttl > 0 {
		pipe.Expire(ctx, userKeyPrefix+userID.String(), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "store session in redis").
			With("user_id", userID.String()).
			Wrap(err)
	}

	return token, nil
}

// Resolve returns the user ID a token stands for.
func (r *Registry) Resolve(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}

	idStr, err := r.rdb.Get(ctx, tokenKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return ulid.ULID{}, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return ulid.ULID{}, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session from redis").
			Wrap(err)
	}

	userID, err := ulid.Parse(idStr)
	if err != nil {
		return ulid.ULID{}, oops.Code("SESSION_INVALID_ENTRY").
			With("operation", "parse user id").
			With("user_id", idStr).
			Wrap(err)
	}
	return userID, nil
}

// Destroy removes a token. Reports true iff an entry existed.
func (r *Registry) Destroy(ctx context.Context, token string) (bool, error) {
	idStr, err := r.rdb.Get(ctx, tokenKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "get session from redis").
			Wrap(err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, tokenKeyPrefix+token)
	pipe.SRem(ctx, userKeyPrefix+idStr, token)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "delete session from redis").
			Wrap(err)
	}
	return true, nil
}

// DestroyAll removes every live token for a user.
func (r *Registry) DestroyAll(ctx context.Context, userID ulid.ULID) error {
	userKey := userKeyPrefix + userID.String()

	tokens, err := r.rdb.SMembers(ctx, userKey).Result()
	if err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "list sessions for user").
			With("user_id", userID.String()).
			Wrap(err)
	}

	pipe := r.rdb.TxPipeline()
	for _, token := range tokens {
		pipe.Del(ctx, tokenKeyPrefix+token)
	}
	pipe.Del(ctx, userKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "delete sessions for user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.SessionStore = (*Registry)(nil)
