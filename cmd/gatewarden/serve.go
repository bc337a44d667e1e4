// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/auth"
	authpg "github.com/gatewarden/gatewarden/internal/auth/postgres"
	"github.com/gatewarden/gatewarden/internal/auth/redisreg"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/httpapi"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/observability"
	"github.com/gatewarden/gatewarden/internal/store"
)

// newServeCmd creates the serve subcommand with all flags configured.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication server",
		Long: `Start the HTTP authentication server, the metrics endpoint, and the
session backend selected by the configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd)
		},
	}

	// Flag names mirror config keys so they merge over the config file.
	// Unchanged flags defer to file values; changed flags win.
	def := config.Default()
	cmd.Flags().String("server.addr", def.Server.Addr, "HTTP listen address")
	cmd.Flags().String("database.url", def.Database.URL, "PostgreSQL connection URL")
	cmd.Flags().String("sessions.policy", def.Sessions.Policy, "session policy (single or multi)")
	cmd.Flags().String("sessions.backend", def.Sessions.Backend, "multi-session backend (memory or redis)")
	cmd.Flags().String("log.level", def.Log.Level, "log level (debug, info, warn, error)")
	cmd.Flags().String("log.format", def.Log.Format, "log format (json or text)")

	return cmd
}

// runServe wires the service together and blocks until shutdown.
func runServe(ctx context.Context, cfg config.Config, cmd *cobra.Command) error {
	logging.SetDefault("gatewarden", version, cfg.Log.Format, cfg.Log.Level)
	logger := slog.Default()

	logger.Info("starting server",
		"addr", cfg.Server.Addr,
		"auth_mode", cfg.Server.AuthMode,
		"session_policy", cfg.Sessions.Policy,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	pool, err := store.Connect(connectCtx, cfg.Database.URL, cfg.Database.MaxConns)
	cancel()
	if err != nil {
		return err
	}
	defer pool.Close()

	users := authpg.NewUserStore(pool)
	hasher := auth.NewBcryptHasher()

	sessions, closeSessions, err := buildSessionStore(cfg.Sessions, users)
	if err != nil {
		return err
	}
	defer closeSessions()

	svc, err := auth.NewServiceWithLogger(users, sessions, hasher, logger)
	if err != nil {
		return err
	}

	authn, err := buildAuthenticator(cfg.Server.AuthMode, users, sessions, hasher)
	if err != nil {
		return err
	}

	var metrics *observability.Metrics
	var obsServer *observability.Server
	if cfg.Metrics.Enabled {
		obsServer = observability.NewServer(cfg.Metrics.Addr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		metrics = obsServer.Metrics()

		obsErrCh, startErr := obsServer.Start()
		if startErr != nil {
			return startErr
		}
		go func() {
			if obsErr := <-obsErrCh; obsErr != nil {
				logger.Error("observability server error", "error", obsErr)
			}
		}()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	api, err := httpapi.NewServer(svc, authn, cfg.Server, metrics, logger)
	if err != nil {
		return err
	}

	apiErrCh := make(chan error, 1)
	go func() {
		apiErrCh <- api.Start()
	}()
	cmd.Println("Server started on " + cfg.Server.Addr)

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err = <-apiErrCh:
		if err != nil {
			return oops.Code("SERVER_FAILED").Wrap(err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := api.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("error stopping HTTP server", "error", shutdownErr)
	}
	if obsServer != nil {
		if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
			logger.Warn("error stopping observability server", "error", stopErr)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// buildSessionStore selects the session backend from the configuration. The
// returned closer releases the backend's connections; it is a no-op for
// in-process backends.
func buildSessionStore(cfg config.SessionsConfig, users auth.UserStore) (auth.SessionStore, func(), error) {
	noop := func() {}

	if cfg.Policy == config.PolicySingle {
		sessions, err := auth.NewSingleSessionStore(users)
		return sessions, noop, err
	}

	switch cfg.Backend {
	case config.BackendMemory:
		return auth.NewMemoryRegistry(), noop, nil
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, noop, oops.Code("CONFIG_INVALID").
				With("redis_url", cfg.RedisURL).
				Wrapf(err, "malformed redis URL")
		}
		client := redis.NewClient(opts)
		registry, err := redisreg.NewRegistry(client, cfg.TTL)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		closer := func() {
			if closeErr := client.Close(); closeErr != nil {
				slog.Warn("error closing redis client", "error", closeErr)
			}
		}
		return registry, closer, nil
	default:
		return nil, noop, oops.Code("CONFIG_INVALID").
			Errorf("unknown session backend %q", cfg.Backend)
	}
}

// buildAuthenticator selects the request authenticator for the configured
// auth mode.
func buildAuthenticator(mode string, users auth.UserStore, sessions auth.SessionStore, hasher auth.PasswordHasher) (auth.Authenticator, error) {
	if mode == config.AuthModeBasic {
		return auth.NewBasicAuthenticator(users, hasher)
	}
	return auth.NewSessionAuthenticator(sessions, users)
}
