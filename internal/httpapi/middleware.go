// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gatewarden/gatewarden/internal/auth"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/pkg/errutil"
)

// contextKeyUser is the echo context key holding the authenticated user.
const contextKeyUser = "httpapi_user"

// requireAuth authenticates every request whose path is not exempted. The
// exemption list is exact-match only; an empty list protects everything.
// Authentication evidence depends on the configured mode: the session cookie
// or the Authorization header.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !auth.RequiresAuth(c.Request().URL.Path, s.cfg.ExcludedPaths) {
			return next(c)
		}

		evidence := s.evidence(c)
		user, err := s.authn.Authenticate(c.Request().Context(), evidence)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
			}
			errutil.LogError(s.logger, "authentication lookup failed", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
		}

		c.Set(contextKeyUser, user)
		return next(c)
	}
}

// evidence extracts the credential material for the configured auth mode.
func (s *Server) evidence(c echo.Context) string {
	if s.cfg.AuthMode == config.AuthModeBasic {
		return c.Request().Header.Get("Authorization")
	}
	token, _ := auth.SessionTokenFromCookies(c.Request(), s.cfg.CookieName)
	return token
}

// currentUser returns the user the middleware authenticated, if any.
func currentUser(c echo.Context) *auth.User {
	user, ok := c.Get(contextKeyUser).(*auth.User)
	if !ok {
		return nil
	}
	return user
}

// recordRequest counts the request in the metrics registry once the
// response is written. A nil metrics handle disables recording.
func (s *Server) recordRequest(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if s.metrics == nil {
			return err
		}

		status := c.Response().Status
		if err != nil {
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				status = httpErr.Code
			} else {
				status = http.StatusInternalServerError
			}
		}
		s.metrics.RequestsTotal.WithLabelValues(
			c.Request().Method,
			c.Path(),
			strconv.Itoa(status),
		).Inc()
		return err
	}
}
