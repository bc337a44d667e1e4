// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gatewarden/gatewarden/internal/auth"
	"github.com/gatewarden/gatewarden/internal/observability"
	"github.com/gatewarden/gatewarden/pkg/errutil"
)

// handleIndex greets unauthenticated visitors (GET /).
func (s *Server) handleIndex(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"message": "Bienvenue"})
}

// handleRegister creates a new account (POST /users).
func (s *Server) handleRegister(c echo.Context) error {
	email := c.FormValue("email")
	password := c.FormValue("password")

	user, err := s.svc.Register(c.Request().Context(), email, password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateAccount):
			s.countRegistration("duplicate")
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "email already registered"})
		case errors.Is(err, auth.ErrValidation):
			s.countRegistration("invalid")
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid email or password"})
		default:
			s.countRegistration("error")
			errutil.LogError(s.logger, "registration failed", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
		}
	}

	s.countRegistration("success")
	return c.JSON(http.StatusOK, echo.Map{"email": user.Email, "message": "user created"})
}

// handleLogin authenticates a credential pair and issues a session cookie
// (POST /sessions).
func (s *Server) handleLogin(c echo.Context) error {
	email := c.FormValue("email")
	password := c.FormValue("password")

	token, err := s.svc.Login(c.Request().Context(), email, password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			s.countLogin(observability.LoginFailure)
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password.")
		}
		s.countLogin(observability.LoginError)
		errutil.LogError(s.logger, "login failed", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}

	s.countLogin(observability.LoginSuccess)
	if s.metrics != nil {
		s.metrics.SessionsActive.Inc()
	}
	s.setSessionCookie(c, token)
	return c.JSON(http.StatusOK, echo.Map{"email": email, "message": "logged in"})
}

// handleLogout destroys the cookie's session and redirects home
// (DELETE /sessions). An invalid session is 403, matching the profile route.
func (s *Server) handleLogout(c echo.Context) error {
	user, err := s.sessionUser(c)
	if err != nil {
		return err
	}

	if err := s.svc.Logout(c.Request().Context(), user.ID); err != nil {
		errutil.LogError(s.logger, "logout failed", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}

	if s.metrics != nil {
		s.metrics.SessionsActive.Dec()
	}
	s.clearSessionCookie(c)
	return c.Redirect(http.StatusFound, "/")
}

// handleProfile returns the session user's email (GET /profile).
func (s *Server) handleProfile(c echo.Context) error {
	user, err := s.sessionUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"email": user.Email})
}

// handleIssueResetToken starts the password-reset flow (POST /reset_password).
// The token is returned in the response body; mail delivery is the caller's
// concern.
func (s *Server) handleIssueResetToken(c echo.Context) error {
	email := c.FormValue("email")
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Email not provided.")
	}

	token, err := s.svc.IssueResetToken(c.Request().Context(), email)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownAccount) {
			s.countReset(observability.ResetPhaseDenied)
			return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
		}
		errutil.LogError(s.logger, "reset token request failed", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}

	s.countReset(observability.ResetPhaseIssued)
	return c.JSON(http.StatusOK, echo.Map{"email": email, "reset_token": token})
}

// handleApplyPasswordReset consumes a reset token (PUT /reset_password).
func (s *Server) handleApplyPasswordReset(c echo.Context) error {
	email := c.FormValue("email")
	token := c.FormValue("reset_token")
	newPassword := c.FormValue("new_password")
	if email == "" || token == "" || newPassword == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing required fields.")
	}

	if err := s.svc.ApplyPasswordReset(c.Request().Context(), token, newPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidResetToken):
			s.countReset(observability.ResetPhaseDenied)
			return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
		case errors.Is(err, auth.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, "Missing required fields.")
		default:
			errutil.LogError(s.logger, "password reset failed", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
		}
	}

	s.countReset(observability.ResetPhaseApplied)
	return c.JSON(http.StatusOK, echo.Map{"email": email, "message": "Password updated"})
}

// sessionUser resolves the request's session to a user: the middleware's
// result when the path was protected, the session cookie otherwise. An
// unresolvable session is 403.
func (s *Server) sessionUser(c echo.Context) (*auth.User, error) {
	if user := currentUser(c); user != nil {
		return user, nil
	}

	token, ok := auth.SessionTokenFromCookies(c.Request(), s.cfg.CookieName)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusForbidden, "Forbidden")
	}

	user, err := s.svc.ResolveSession(c.Request().Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return nil, echo.NewHTTPError(http.StatusForbidden, "Forbidden")
		}
		errutil.LogError(s.logger, "session lookup failed", err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}
	return user, nil
}

// setSessionCookie attaches the session token to the response.
func (s *Server) setSessionCookie(c echo.Context, token string) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie removes the session cookie by setting MaxAge to -1.
func (s *Server) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Server) countRegistration(status string) {
	if s.metrics != nil {
		s.metrics.RegistrationsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Server) countLogin(status string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Server) countReset(phase string) {
	if s.metrics != nil {
		s.metrics.PasswordResetsTotal.WithLabelValues(phase).Inc()
	}
}
