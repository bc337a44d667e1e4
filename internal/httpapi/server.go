// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package httpapi exposes the authentication service over HTTP. Handlers are
// thin: they bind the request, call the service, and render the response. No
// business logic lives here.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"

	"github.com/gatewarden/gatewarden/internal/auth"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/observability"
)

// Server serves the authentication API.
type Server struct {
	echo    *echo.Echo
	svc     *auth.Service
	authn   auth.Authenticator
	cfg     config.ServerConfig
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewServer creates a Server and registers its routes. metrics may be nil
// when the observability listener is disabled.
func NewServer(svc *auth.Service, authn auth.Authenticator, cfg config.ServerConfig, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("API_INVALID_DEPS").Errorf("auth service is required")
	}
	if authn == nil {
		return nil, oops.Code("API_INVALID_DEPS").Errorf("authenticator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		svc:     svc,
		authn:   authn,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}

	e.Use(s.recordRequest)
	e.Use(s.requireAuth)

	e.GET("/", s.handleIndex)
	e.POST("/users", s.handleRegister)
	e.POST("/sessions", s.handleLogin)
	e.DELETE("/sessions", s.handleLogout)
	e.GET("/profile", s.handleProfile)
	e.POST("/reset_password", s.handleIssueResetToken)
	e.PUT("/reset_password", s.handleApplyPasswordReset)

	return s, nil
}

// Handler returns the underlying HTTP handler, for tests and embedding.
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", slog.String("addr", s.cfg.Addr))
	if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return oops.Code("API_SERVE_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return oops.Code("API_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("http server stopped")
	return nil
}
