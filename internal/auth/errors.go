// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import "errors"

// Sentinel errors. Coded oops errors wrap these so callers can branch with
// errors.Is while logs keep the specific code.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidToken covers every bearer token rejection.
	ErrInvalidToken = errors.New("invalid credential")

	// ErrInvalidCredentials is returned for a failed email/password check.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidResetToken covers unknown and expired reset tokens.
	ErrInvalidResetToken = errors.New("invalid or expired token")

	// ErrUnauthenticated is returned when no valid credential accompanies a request.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when the principal's role is not allowed.
	ErrForbidden = errors.New("insufficient role")

	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrSessionDestroyed is returned when writing to a destroyed session.
	ErrSessionDestroyed = errors.New("session destroyed")
)
