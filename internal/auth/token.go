// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
)

// TokenBytes is the number of random bytes in a session or reset token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const TokenBytes = 32

// GenerateToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext token is
// handed to the client; only the hash is persisted.
func GenerateToken() (token, hash string, err error) {
	tokenBytes := make([]byte, TokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("AUTH_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashToken(token)

	return token, hash, nil
}

// HashToken computes the SHA-256 hash of a token, hex-encoded. Token
// columns store this hash so a leaked database does not leak live tokens.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyToken checks if the plaintext token matches the stored hash.
// Uses constant-time comparison to prevent timing attacks.
func VerifyToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
