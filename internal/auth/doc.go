// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

// Package auth provides authentication and session security for CourseVoice.
//
// # Credentials
//
// A request is authenticated by one of two credentials:
//   - a bearer token issued by TokenService (API clients)
//   - a server-side session run by SessionManager (browser clients)
//
// AccessGate resolves either credential into a single Principal and applies
// role requirements. A bearer header always takes precedence over the cookie.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - registration and password login
//   - PasswordResetService - single-use reset tokens and the reset flow
//
// Services are created with New*Service constructors that validate dependencies.
// Nothing in this package keeps process-wide mutable state apart from the
// prometheus collectors returned by Collectors.
package auth
