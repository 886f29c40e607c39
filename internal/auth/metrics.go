// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// Session destruction reasons.
const (
	ReasonLogout              = "logout"
	ReasonFingerprintMismatch = "fingerprint_mismatch"
	ReasonIdleTimeout         = "idle_timeout"
	ReasonAbsoluteTimeout     = "absolute_timeout"
)

// Login outcomes.
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginThrottled          = "throttled"
	LoginError              = "error"
)

var tokenValidations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coursevoice_token_validations_total",
		Help: "Bearer token validations by outcome",
	},
	[]string{"outcome"},
)

var sessionsDestroyed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coursevoice_sessions_destroyed_total",
		Help: "Browser sessions destroyed by reason",
	},
	[]string{"reason"},
)

var loginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coursevoice_login_attempts_total",
		Help: "Login attempts by outcome",
	},
	[]string{"outcome"},
)

var resetEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coursevoice_password_reset_events_total",
		Help: "Password reset requests and redemptions by outcome",
	},
	[]string{"event", "outcome"},
)

var accessDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coursevoice_access_decisions_total",
		Help: "Access gate decisions by credential source and result",
	},
	[]string{"source", "result"},
)

// Collectors returns the auth package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		tokenValidations,
		sessionsDestroyed,
		loginAttempts,
		resetEvents,
		accessDecisions,
	}
}

// RecordLogin counts a login attempt with the given outcome.
func RecordLogin(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}
