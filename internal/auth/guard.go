// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"net/http"
	"strings"
)

// DefaultSessionCookie is the cookie name used for session tokens when the
// deployment does not configure one.
const DefaultSessionCookie = "gatewarden_session"

// RequiresAuth reports whether a request path needs authentication given a
// list of exempted paths. Trailing slashes are normalized on both sides, so
// "/status" and "/status/" are the same path. Matching is exact: no prefix
// or pattern matching. An empty path or an empty exemption list fails
// closed and requires authentication.
func RequiresAuth(path string, excluded []string) bool {
	if path == "" || len(excluded) == 0 {
		return true
	}
	normalized := normalizePath(path)
	for _, e := range excluded {
		if normalizePath(e) == normalized {
			return false
		}
	}
	return true
}

// normalizePath strips trailing slashes, keeping the bare root intact.
func normalizePath(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// SessionTokenFromCookies reads the named session cookie from a request.
// A pure read: no mutation, no validation beyond presence.
func SessionTokenFromCookies(r *http.Request, cookieName string) (string, bool) {
	if r == nil {
		return "", false
	}
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
