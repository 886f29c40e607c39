// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/samber/oops"
)

// Session defaults.
const (
	DefaultSessionCookieName = "cv_session"
	DefaultIdleTimeout       = 30 * time.Minute
	DefaultAbsoluteLifetime  = 8 * time.Hour
	DefaultMaxFailedAttempts = 5
)

// Keys stored in the session bag. Values are primitives so any gob or
// JSON backed store can round-trip them.
const (
	sessionKeyCreated        = "created"
	sessionKeyLastActivity   = "last_activity"
	sessionKeyFingerprint    = "fingerprint"
	sessionKeyFailedAttempts = "failed_attempts"
	sessionKeyLastFailure    = "last_failure"
	sessionKeyUserID         = "user_id"
	sessionKeyUserEmail      = "user_email"
	sessionKeyUserRole       = "user_role"
)

// RequestMeta is the client metadata a session fingerprint is derived from.
type RequestMeta struct {
	IP             string
	UserAgent      string
	AcceptLanguage string
}

// Fingerprint returns the hex sha256 of the request metadata.
func (m RequestMeta) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(m.IP))
	h.Write([]byte{0})
	h.Write([]byte(m.UserAgent))
	h.Write([]byte{0})
	h.Write([]byte(m.AcceptLanguage))
	return hex.EncodeToString(h.Sum(nil))
}

// SessionUser is the identity written into an authenticated session.
type SessionUser struct {
	ID    int64
	Email string
	Role  Role
}

// SessionConfig configures a SessionManager.
type SessionConfig struct {
	IdleTimeout       time.Duration
	AbsoluteLifetime  time.Duration
	MaxFailedAttempts int
	// SecureCookie sets the Secure attribute; enable when served over TLS.
	SecureCookie bool
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// SessionManager runs the per-request session lifecycle on top of a
// transport-provided session bag.
type SessionManager struct {
	idle         time.Duration
	absolute     time.Duration
	maxFailures  int
	secureCookie bool
	now          func() time.Time
	logger       *slog.Logger
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(cfg SessionConfig, logger *slog.Logger) (*SessionManager, error) {
	if cfg.IdleTimeout <= 0 {
		return nil, oops.Code("SESSION_CONFIG_INVALID").Errorf("idle timeout must be positive")
	}
	if cfg.AbsoluteLifetime < cfg.IdleTimeout {
		return nil, oops.Code("SESSION_CONFIG_INVALID").
			With("idle_timeout", cfg.IdleTimeout.String()).
			With("absolute_lifetime", cfg.AbsoluteLifetime.String()).
			Errorf("absolute lifetime must not be shorter than the idle timeout")
	}
	if cfg.MaxFailedAttempts <= 0 {
		return nil, oops.Code("SESSION_CONFIG_INVALID").Errorf("max failed attempts must be positive")
	}
	if logger == nil {
		return nil, oops.Code("SESSION_CONFIG_INVALID").Errorf("logger is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		idle:         cfg.IdleTimeout,
		absolute:     cfg.AbsoluteLifetime,
		maxFailures:  cfg.MaxFailedAttempts,
		secureCookie: cfg.SecureCookie,
		now:          now,
		logger:       logger,
	}, nil
}

// CookieOptions returns the attributes for a live session cookie.
func (m *SessionManager) CookieOptions() sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   int(m.absolute / time.Second),
		Secure:   m.secureCookie,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (m *SessionManager) expiredCookieOptions() sessions.Options {
	opts := m.CookieOptions()
	opts.MaxAge = -1
	return opts
}

// Begin runs once at request start. It initializes a new session, or checks
// the fingerprint and both timeouts of an existing one before anything else
// reads it. A session that fails a check is destroyed and the returned handle
// is anonymous. The returned error only reports a failed store write.
func (m *SessionManager) Begin(bag sessions.Session, meta RequestMeta) (*Session, error) {
	s := &Session{bag: bag, mgr: m}
	now := m.now()
	fingerprint := meta.Fingerprint()

	created, ok := readUnix(bag.Get(sessionKeyCreated))
	if !ok {
		bag.Clear()
		bag.Set(sessionKeyCreated, now.Unix())
		bag.Set(sessionKeyLastActivity, now.Unix())
		bag.Set(sessionKeyFingerprint, fingerprint)
		bag.Set(sessionKeyFailedAttempts, 0)
		bag.Options(m.CookieOptions())
		if err := bag.Save(); err != nil {
			return s, oops.Code("SESSION_SAVE_FAILED").With("operation", "start session").Wrap(err)
		}
		return s, nil
	}

	stored, _ := bag.Get(sessionKeyFingerprint).(string)
	if subtle.ConstantTimeCompare([]byte(stored), []byte(fingerprint)) != 1 {
		return s, s.destroy(ReasonFingerprintMismatch)
	}

	lastActivity, ok := readUnix(bag.Get(sessionKeyLastActivity))
	switch {
	case now.Sub(created) > m.absolute:
		return s, s.destroy(ReasonAbsoluteTimeout)
	case !ok || now.Sub(lastActivity) > m.idle:
		return s, s.destroy(ReasonIdleTimeout)
	}

	bag.Set(sessionKeyLastActivity, now.Unix())
	if err := bag.Save(); err != nil {
		return s, oops.Code("SESSION_SAVE_FAILED").With("operation", "refresh session").Wrap(err)
	}
	return s, nil
}

// Session is the per-request handle returned by SessionManager.Begin.
// It is not safe for concurrent use.
type Session struct {
	bag       sessions.Session
	mgr       *SessionManager
	destroyed string
}

// Destroyed reports whether the session was destroyed during this request.
func (s *Session) Destroyed() bool {
	return s.destroyed != ""
}

// DestroyReason returns why the session was destroyed, or "".
func (s *Session) DestroyReason() string {
	return s.destroyed
}

// StoreUser marks the session authenticated as u and clears the failed
// login counter.
func (s *Session) StoreUser(u SessionUser) error {
	if s.Destroyed() {
		return oops.Code("SESSION_DESTROYED").Wrap(ErrSessionDestroyed)
	}
	s.bag.Set(sessionKeyUserID, u.ID)
	s.bag.Set(sessionKeyUserEmail, u.Email)
	s.bag.Set(sessionKeyUserRole, string(u.Role))
	s.bag.Set(sessionKeyFailedAttempts, 0)
	s.bag.Delete(sessionKeyLastFailure)
	if err := s.bag.Save(); err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("operation", "store user").With("user_id", u.ID).Wrap(err)
	}
	return nil
}

// IsAuthenticated reports whether the session carries a user and a
// fingerprint and survived this request's checks.
func (s *Session) IsAuthenticated() bool {
	if s.Destroyed() {
		return false
	}
	if _, ok := s.bag.Get(sessionKeyFingerprint).(string); !ok {
		return false
	}
	id, ok := readInt64(s.bag.Get(sessionKeyUserID))
	return ok && id > 0
}

// User returns the authenticated user.
func (s *Session) User() (SessionUser, bool) {
	if !s.IsAuthenticated() {
		return SessionUser{}, false
	}
	id, _ := readInt64(s.bag.Get(sessionKeyUserID))
	email, _ := s.bag.Get(sessionKeyUserEmail).(string)
	role, _ := s.bag.Get(sessionKeyUserRole).(string)
	return SessionUser{ID: id, Email: email, Role: Role(role)}, true
}

// FailedAttempts returns the failed login count of this session.
func (s *Session) FailedAttempts() int {
	n, _ := readInt64(s.bag.Get(sessionKeyFailedAttempts))
	return int(n)
}

// IncrementFailedLogin records a failed login and returns the new count.
// Concurrent requests on one session may under-count.
func (s *Session) IncrementFailedLogin() (int, error) {
	if s.Destroyed() {
		return 0, oops.Code("SESSION_DESTROYED").Wrap(ErrSessionDestroyed)
	}
	n := s.FailedAttempts() + 1
	s.bag.Set(sessionKeyFailedAttempts, n)
	s.bag.Set(sessionKeyLastFailure, s.mgr.now().Unix())
	if err := s.bag.Save(); err != nil {
		return n, oops.Code("SESSION_SAVE_FAILED").With("operation", "increment failed login").Wrap(err)
	}
	return n, nil
}

// ResetFailedLogins clears the failed login counter.
func (s *Session) ResetFailedLogins() error {
	if s.Destroyed() {
		return oops.Code("SESSION_DESTROYED").Wrap(ErrSessionDestroyed)
	}
	s.bag.Set(sessionKeyFailedAttempts, 0)
	s.bag.Delete(sessionKeyLastFailure)
	if err := s.bag.Save(); err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("operation", "reset failed logins").Wrap(err)
	}
	return nil
}

// TooManyFailedAttempts reports whether the failure count reached the limit.
func (s *Session) TooManyFailedAttempts() bool {
	return s.FailedAttempts() >= s.mgr.maxFailures
}

// LoginBackoff evaluates the progressive delay for this session.
func (s *Session) LoginBackoff() RateLimitResult {
	lastFailure, _ := readUnix(s.bag.Get(sessionKeyLastFailure))
	return CheckFailures(s.FailedAttempts(), s.mgr.maxFailures, lastFailure, s.mgr.now())
}

// ExpiresAt returns the earlier of the absolute and idle deadlines.
func (s *Session) ExpiresAt() time.Time {
	created, okCreated := readUnix(s.bag.Get(sessionKeyCreated))
	last, okLast := readUnix(s.bag.Get(sessionKeyLastActivity))
	if !okCreated || !okLast {
		return time.Time{}
	}
	absolute := created.Add(s.mgr.absolute)
	idle := last.Add(s.mgr.idle)
	if idle.Before(absolute) {
		return idle
	}
	return absolute
}

// Destroy clears all state and expires the cookie. Used on logout.
func (s *Session) Destroy() error {
	if s.Destroyed() {
		return nil
	}
	return s.destroy(ReasonLogout)
}

func (s *Session) destroy(reason string) error {
	s.destroyed = reason
	s.bag.Clear()
	s.bag.Options(s.mgr.expiredCookieOptions())
	sessionsDestroyed.WithLabelValues(reason).Inc()
	s.mgr.logger.Debug("session destroyed", "reason", reason)
	if err := s.bag.Save(); err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("operation", "destroy session").With("reason", reason).Wrap(err)
	}
	return nil
}

// readUnix accepts the numeric shapes session codecs produce.
func readUnix(v any) (time.Time, bool) {
	n, ok := readInt64(v)
	if !ok || n <= 0 {
		return time.Time{}, false
	}
	return time.Unix(n, 0), true
}

func readInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case float64:
		return int64(val), true
	}
	return 0, false
}
