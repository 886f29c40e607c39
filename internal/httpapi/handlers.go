// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/coursevoice/coursevoice/internal/auth"
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string   `json:"token"`
	TokenType string   `json:"token_type"`
	ExpiresIn int64    `json:"expires_in"`
	Role      string   `json:"role"`
	User      userView `json:"user"`
}

type userView struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
}

func viewOf(u *auth.User) userView {
	return userView{ID: u.ID, Email: u.Email, Role: string(u.Role), DisplayName: u.DisplayName}
}

func (h *handlers) register(c *gin.Context) {
	var req auth.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, msgMalformedBody)
		return
	}

	user, err := h.deps.Auth.Register(c.Request.Context(), req)
	if err != nil {
		failFromError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, "Account created", viewOf(user))
}

// login authenticates with email and password and establishes both
// credentials: a bearer token in the body and an authenticated session.
func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, msgMalformedBody)
		return
	}
	ctx := c.Request.Context()

	sess := h.liveSession(c)
	if backoff := sess.LoginBackoff(); backoff.RetryAfter > 0 {
		auth.RecordLogin(auth.LoginThrottled)
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(backoff.RetryAfter.Seconds()))))
		fail(c, http.StatusTooManyRequests, msgTooManyAttempts)
		return
	}

	user, err := h.deps.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			auth.RecordLogin(auth.LoginInvalidCredentials)
			if _, incErr := sess.IncrementFailedLogin(); incErr != nil {
				h.logger.WarnContext(ctx, "recording failed login", "error", incErr)
			}
		} else {
			auth.RecordLogin(auth.LoginError)
		}
		failFromError(c, h.logger, err)
		return
	}

	identity := user.SessionUser()
	token, err := h.deps.Tokens.Issue(auth.IdentityClaims(identity))
	if err != nil {
		auth.RecordLogin(auth.LoginError)
		failFromError(c, h.logger, err)
		return
	}
	if err := sess.StoreUser(identity); err != nil {
		h.logger.WarnContext(ctx, "session login not persisted", "user_id", user.ID, "error", err)
	}

	auth.RecordLogin(auth.LoginSuccess)
	h.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID, "role", string(user.Role))
	respond(c, http.StatusOK, "Logged in", loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(h.deps.Tokens.Lifetime() / time.Second),
		Role:      string(user.Role),
		User:      viewOf(user),
	})
}

// liveSession returns the request session, starting a fresh one when the
// lifecycle checks destroyed it earlier in this request.
func (h *handlers) liveSession(c *gin.Context) *auth.Session {
	sess := sessionFrom(c)
	if sess != nil && !sess.Destroyed() {
		return sess
	}
	fresh, err := h.deps.Sessions.Begin(sessions.Default(c), requestMeta(c))
	if err != nil {
		h.logger.WarnContext(c.Request.Context(), "restarting session", "error", err)
	}
	c.Set(ctxKeySession, fresh)
	return fresh
}

// logout ends the browser session. Bearer tokens stay valid until expiry.
func (h *handlers) logout(c *gin.Context) {
	if sess := sessionFrom(c); sess != nil {
		if err := sess.Destroy(); err != nil {
			failFromError(c, h.logger, err)
			return
		}
	}
	respond(c, http.StatusOK, "Logged out", nil)
}

type principalView struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
	Source    string    `json:"source"`
}

func (h *handlers) me(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c.Request.Context())
	if !ok {
		failFromError(c, h.logger, auth.ErrUnauthenticated)
		return
	}
	respond(c, http.StatusOK, "OK", principalView{
		ID:        p.UserID,
		Email:     p.Email,
		Role:      string(p.Role),
		ExpiresAt: p.ExpiresAt,
		Source:    string(p.Source),
	})
}

type resetRequest struct {
	Email string `json:"email" binding:"required"`
}

// requestReset answers the same way whether or not the email is known, and
// also when sending fails.
func (h *handlers) requestReset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, msgMalformedBody)
		return
	}
	if err := h.deps.Resets.RequestReset(c.Request.Context(), req.Email); err != nil {
		h.logger.ErrorContext(c.Request.Context(), "password reset request failed",
			"error", err)
	}
	respond(c, http.StatusOK, msgResetRequested, nil)
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *handlers) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, msgMalformedBody)
		return
	}
	if err := h.deps.Resets.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		failFromError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Password updated", nil)
}

func (h *handlers) ping(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c.Request.Context())
	respond(c, http.StatusOK, "pong", gin.H{"role": string(p.Role)})
}
