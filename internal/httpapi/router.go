// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

// Package httpapi is the JSON HTTP surface of CourseVoice: registration,
// login, logout, password reset and role-guarded ping routes.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/coursevoice/coursevoice/internal/auth"
)

// Authenticator checks and creates accounts.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.User, error)
	Register(ctx context.Context, req auth.RegistrationRequest) (*auth.User, error)
}

// TokenIssuer issues bearer tokens.
type TokenIssuer interface {
	Issue(claims map[string]any) (string, error)
	Lifetime() time.Duration
}

// ResetFlow runs the password reset exchange.
type ResetFlow interface {
	RequestReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Deps are the collaborators of the router.
type Deps struct {
	Auth     Authenticator
	Tokens   TokenIssuer
	Sessions *auth.SessionManager
	Gate     *auth.AccessGate
	Resets   ResetFlow
	// Store backs the session cookie.
	Store      sessions.Store
	CookieName string
	Logger     *slog.Logger
	// Observer is optional.
	Observer RequestObserver
}

// Options tune the router.
type Options struct {
	// CORSOrigins lists browser origins allowed to call the API with
	// credentials. Empty disables CORS handling.
	CORSOrigins []string
	// TrustedProxies are the proxies whose forwarding headers set the
	// client IP used in session fingerprints.
	TrustedProxies []string
}

func (d Deps) validate() error {
	switch {
	case d.Auth == nil, d.Tokens == nil, d.Sessions == nil, d.Gate == nil, d.Resets == nil:
		return oops.Code("HTTP_CONFIG_INVALID").Errorf("auth collaborators are required")
	case d.Store == nil:
		return oops.Code("HTTP_CONFIG_INVALID").Errorf("session store is required")
	case d.Logger == nil:
		return oops.Code("HTTP_CONFIG_INVALID").Errorf("logger is required")
	}
	return nil
}

// NewRouter builds the gin engine with every route and middleware.
func NewRouter(deps Deps, opts Options) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cookieName := deps.CookieName
	if cookieName == "" {
		cookieName = auth.DefaultSessionCookieName
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, oops.Code("HTTP_CONFIG_INVALID").
			With("operation", "set trusted proxies").
			Wrap(err)
	}

	r.Use(withRequestID(), accessLog(deps.Logger, deps.Observer), recoverPanics(deps.Logger))
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderRequestID},
			ExposeHeaders:    []string{HeaderRequestID, "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	deps.Store.Options(deps.Sessions.CookieOptions())
	r.Use(sessions.Sessions(cookieName, deps.Store), beginSession(deps.Sessions, deps.Logger))

	h := &handlers{deps: deps, logger: deps.Logger}

	authGroup := r.Group("/auth")
	authGroup.POST("/register", h.register)
	authGroup.POST("/login", h.login)
	authGroup.POST("/logout", h.logout)
	authGroup.GET("/me", guard(deps.Gate, deps.Logger), h.me)
	authGroup.POST("/password-reset/request", h.requestReset)
	authGroup.POST("/password-reset", h.resetPassword)

	r.GET("/admin/ping", guard(deps.Gate, deps.Logger, auth.RoleAdmin), h.ping)
	r.GET("/lecturer/ping", guard(deps.Gate, deps.Logger, auth.RoleLecturer, auth.RoleAdmin), h.ping)

	r.NoRoute(func(c *gin.Context) { fail(c, 404, "Not found") })
	return r, nil
}
