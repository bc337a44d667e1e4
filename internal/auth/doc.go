// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package auth provides the credential and session primitives for Gatewarden.
//
// # Domain Types
//
// User is the persisted account record. Only hashes of passwords, session
// tokens, and reset tokens are stored; the plaintext values exist solely in
// transit between the client and this package.
//
// # Components
//
//   - PasswordHasher - salted one-way password hashing (bcrypt)
//   - UserStore - persistence contract for user records
//   - Authenticator - resolves request evidence (a Basic Authorization
//     header or a session token) into a User
//   - SessionStore - records live session tokens under one of two policies:
//     single-session (token hash on the user row) or multi-session
//     (token registry)
//   - Service - orchestrates registration, login, logout, and the
//     password-reset flow over the pieces above
//
// Authentication failures are deliberately uniform: lookups that miss and
// credentials that do not verify both surface as ErrUnauthenticated so the
// caller cannot probe for account existence.
package auth
