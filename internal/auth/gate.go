// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/coursevoice/coursevoice/pkg/errutil"
)

var tracer = otel.Tracer("coursevoice/auth")

// Source names the credential a Principal was resolved from.
type Source string

// Credential sources.
const (
	SourceBearer  Source = "bearer"
	SourceSession Source = "session"
)

// Principal is the authenticated identity of one request. It is rebuilt on
// every request and never stored.
type Principal struct {
	UserID    int64
	Email     string
	Role      Role
	ExpiresAt time.Time
	Source    Source
}

// Credential is what a request presented: BearerCredential,
// SessionCredential or NoCredential.
type Credential interface {
	credential()
}

// BearerCredential is an Authorization: Bearer token.
type BearerCredential struct {
	Token string
}

// SessionCredential is an authenticated browser session.
type SessionCredential struct {
	Session *Session
}

// NoCredential means the request is anonymous.
type NoCredential struct{}

func (BearerCredential) credential()  {}
func (SessionCredential) credential() {}
func (NoCredential) credential()      {}

// CredentialFromRequest picks the credential of r. A Bearer header wins over
// the session even when the token turns out to be invalid, so API clients
// are never downgraded to cookie state. A bare "Bearer" header, as sent
// after the transport trims "Bearer ", counts as a bearer with no token.
func CredentialFromRequest(r *http.Request, sess *Session) Credential {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, _ := strings.Cut(header, " ")
		if strings.EqualFold(scheme, "Bearer") {
			return BearerCredential{Token: strings.TrimSpace(token)}
		}
	}
	if sess != nil && sess.IsAuthenticated() {
		return SessionCredential{Session: sess}
	}
	return NoCredential{}
}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	Validate(token string) (Claims, error)
}

// AccessGate turns a Credential into a Principal and enforces roles.
type AccessGate struct {
	tokens TokenValidator
	logger *slog.Logger
}

// NewAccessGate creates an AccessGate.
func NewAccessGate(tokens TokenValidator, logger *slog.Logger) (*AccessGate, error) {
	if tokens == nil {
		return nil, oops.Code("GATE_CONFIG_INVALID").Errorf("token validator is required")
	}
	if logger == nil {
		return nil, oops.Code("GATE_CONFIG_INVALID").Errorf("logger is required")
	}
	return &AccessGate{tokens: tokens, logger: logger}, nil
}

// RequireAuthenticated resolves cred into a Principal. Every failure wraps
// ErrUnauthenticated; the underlying cause is only logged.
func (g *AccessGate) RequireAuthenticated(ctx context.Context, cred Credential) (Principal, error) {
	ctx, span := tracer.Start(ctx, "auth.require_authenticated")
	defer span.End()

	p, err := g.authenticate(ctx, cred)
	recordDecision(span, p, err)
	return p, err
}

func (g *AccessGate) authenticate(ctx context.Context, cred Credential) (Principal, error) {
	switch c := cred.(type) {
	case BearerCredential:
		claims, err := g.tokens.Validate(c.Token)
		if err != nil {
			errutil.Log(ctx, g.logger, slog.LevelDebug, "bearer credential rejected", err)
			return g.unauthenticated(SourceBearer, "invalid token")
		}
		p, ok := PrincipalFromClaims(claims)
		if !ok {
			g.logger.DebugContext(ctx, "bearer token lacks identity claims", "jti", claims.JTI())
			return g.unauthenticated(SourceBearer, "token lacks identity claims")
		}
		accessDecisions.WithLabelValues(string(SourceBearer), "authenticated").Inc()
		return p, nil

	case SessionCredential:
		if c.Session == nil {
			return g.unauthenticated(SourceSession, "no session")
		}
		user, ok := c.Session.User()
		if !ok || !user.Role.Valid() {
			return g.unauthenticated(SourceSession, "session not authenticated")
		}
		accessDecisions.WithLabelValues(string(SourceSession), "authenticated").Inc()
		return Principal{
			UserID:    user.ID,
			Email:     user.Email,
			Role:      user.Role,
			ExpiresAt: c.Session.ExpiresAt(),
			Source:    SourceSession,
		}, nil

	default:
		return g.unauthenticated("none", "no credential")
	}
}

// RequireRole resolves cred and checks that the principal has one of roles.
// An authenticated principal with another role gets ErrForbidden.
func (g *AccessGate) RequireRole(ctx context.Context, cred Credential, roles ...Role) (Principal, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	ctx, span := tracer.Start(ctx, "auth.require_role",
		trace.WithAttributes(attribute.StringSlice("auth.allowed_roles", names)))
	defer span.End()

	p, err := g.authenticate(ctx, cred)
	if err == nil && !p.Role.In(roles...) {
		accessDecisions.WithLabelValues(string(p.Source), "forbidden").Inc()
		g.logger.DebugContext(ctx, "role not allowed", "user_id", p.UserID, "role", string(p.Role))
		err = oops.Code("AUTH_FORBIDDEN").
			With("user_id", p.UserID).
			With("role", string(p.Role)).
			Wrap(ErrForbidden)
	}
	recordDecision(span, p, err)
	if err != nil {
		return Principal{}, err
	}
	return p, nil
}

// recordDecision annotates span with the outcome. Credentials never appear.
func recordDecision(span trace.Span, p Principal, err error) {
	if p.Source != "" {
		span.SetAttributes(
			attribute.String("auth.source", string(p.Source)),
			attribute.Int64("user.id", p.UserID),
			attribute.String("user.role", string(p.Role)),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "access denied")
	}
}

func (g *AccessGate) unauthenticated(source Source, reason string) (Principal, error) {
	accessDecisions.WithLabelValues(string(source), "unauthenticated").Inc()
	return Principal{}, oops.Code("AUTH_UNAUTHENTICATED").With("reason", reason).Wrap(ErrUnauthenticated)
}

// PrincipalFromClaims builds a Principal from validated token claims. It
// needs a positive "id" and a known "role".
func PrincipalFromClaims(c Claims) (Principal, bool) {
	id, ok := c.UserID()
	if !ok || id <= 0 {
		return Principal{}, false
	}
	role, ok := c.Role()
	if !ok {
		return Principal{}, false
	}
	return Principal{
		UserID:    id,
		Email:     c.Email(),
		Role:      role,
		ExpiresAt: c.ExpiresAt(),
		Source:    SourceBearer,
	}, true
}

// IdentityClaims returns the custom claims a bearer token carries for u.
func IdentityClaims(u SessionUser) map[string]any {
	return map[string]any{
		"id":    u.ID,
		"email": u.Email,
		"role":  string(u.Role),
	}
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the Principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
