// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package store provides database connectivity and schema management.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// connectBackoff is the initial backoff between connection attempts. The
// backoff doubles per attempt up to maxConnectAttempts.
const (
	connectBackoff     = 500 * time.Millisecond
	maxConnectAttempts = 6
)

// Connect opens a pgx connection pool and verifies it with a ping. The ping
// is retried with exponential backoff so the service tolerates a database
// that is still starting, which is the normal case under container
// orchestration.
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_FAILED").
			With("operation", "parse database url").
			Wrap(err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "create connection pool").
			Wrap(err)
	}

	backoff := retry.WithMaxRetries(maxConnectAttempts, retry.NewExponential(connectBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			slog.Warn("database not reachable yet, retrying",
				slog.String("error", err.Error()),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "ping database").
			Wrap(err)
	}

	return pool, nil
}
