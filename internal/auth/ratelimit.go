// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import (
	"time"
)

// MaxLoginDelay caps the progressive delay between failed logins.
const MaxLoginDelay = 32 * time.Second

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	// Delay is the minimum gap required after the last failure.
	Delay time.Duration

	// RetryAfter is how long the caller must still wait. Zero means an
	// attempt is allowed now.
	RetryAfter time.Duration

	// IsLockedOut indicates the session may not attempt another login.
	IsLockedOut bool
}

// CheckFailures evaluates the rate limit state of a session.
// Delay grows as 2^(failures-1) seconds, capped at MaxLoginDelay.
// Reaching maxFailures locks the session out until it is destroyed.
func CheckFailures(failures, maxFailures int, lastFailure, now time.Time) RateLimitResult {
	result := RateLimitResult{}
	if failures <= 0 {
		return result
	}

	// 2^5s already reaches the cap; larger shifts would overflow.
	result.Delay = MaxLoginDelay
	if failures <= 6 {
		result.Delay = time.Duration(1<<(failures-1)) * time.Second
	}

	if failures >= maxFailures {
		result.IsLockedOut = true
		result.RetryAfter = MaxLoginDelay
		return result
	}

	if !lastFailure.IsZero() {
		if wait := lastFailure.Add(result.Delay).Sub(now); wait > 0 {
			result.RetryAfter = wait
		}
	}
	return result
}
