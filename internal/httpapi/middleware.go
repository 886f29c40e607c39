// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coursevoice/coursevoice/internal/auth"
	"github.com/coursevoice/coursevoice/internal/logging"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const ctxKeySession = "coursevoice.session"

// RequestObserver records completed requests.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// withRequestID reuses an inbound X-Request-ID when it is a UUID and
// generates one otherwise. Loggers built by the logging package pick the id
// up from the request context.
func withRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// accessLog logs each request once it completes and reports it to obs.
func accessLog(logger *slog.Logger, obs RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"client_ip", c.ClientIP())

		if obs != nil {
			obs.ObserveRequest(c.Request.Method, route, status, elapsed)
		}
	}
}

// recoverPanics turns a handler panic into a 500 envelope.
func recoverPanics(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.ErrorContext(c.Request.Context(), "handler panic",
			"panic", recovered)
		fail(c, http.StatusInternalServerError, msgInternal)
	})
}

func requestMeta(c *gin.Context) auth.RequestMeta {
	return auth.RequestMeta{
		IP:             c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		AcceptLanguage: c.GetHeader("Accept-Language"),
	}
}

// beginSession runs the session lifecycle checks before any handler reads
// the session. A store failure is logged and the request continues; bearer
// requests do not depend on the session.
func beginSession(mgr *auth.SessionManager, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := mgr.Begin(sessions.Default(c), requestMeta(c))
		if err != nil {
			logger.WarnContext(c.Request.Context(), "session store unavailable",
				"error", err)
		}
		if sess.Destroyed() {
			logger.InfoContext(c.Request.Context(), "session ended",
				"reason", sess.DestroyReason())
		}
		c.Set(ctxKeySession, sess)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *auth.Session {
	v, ok := c.Get(ctxKeySession)
	if !ok {
		return nil
	}
	sess, _ := v.(*auth.Session)
	return sess
}

// guard resolves the request credential through gate. With no roles any
// authenticated principal passes. The principal is attached to the request
// context.
func guard(gate *auth.AccessGate, logger *slog.Logger, roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		cred := auth.CredentialFromRequest(c.Request, sessionFrom(c))

		var (
			p   auth.Principal
			err error
		)
		if len(roles) == 0 {
			p, err = gate.RequireAuthenticated(ctx, cred)
		} else {
			p, err = gate.RequireRole(ctx, cred, roles...)
		}
		if err != nil {
			failFromError(c, logger, err)
			return
		}

		c.Request = c.Request.WithContext(auth.WithPrincipal(ctx, p))
		c.Next()
	}
}
