// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultTokenLifetime = time.Hour
	DefaultClockSkew     = 60 * time.Second

	// MinSecretLength is the minimum signing secret size accepted by config, in bytes.
	MinSecretLength = 32

	notBeforeLeeway = 10 // seconds
	jtiBytes        = 16
)

// Token rejection codes. They stay internal; callers see ErrInvalidToken.
const (
	CodeTokenMalformed              = "TOKEN_MALFORMED"
	CodeTokenSignatureMismatch      = "TOKEN_SIGNATURE_MISMATCH"
	CodeTokenAlgorithmMismatch      = "TOKEN_ALGORITHM_MISMATCH"
	CodeTokenExpiredOrNotYetValid   = "TOKEN_EXPIRED_OR_NOT_YET_VALID"
	CodeTokenIssuerAudienceMismatch = "TOKEN_ISSUER_AUDIENCE_MISMATCH"
)

// tokenOutcomes maps rejection codes to metric labels.
var tokenOutcomes = map[string]string{
	CodeTokenMalformed:              "malformed",
	CodeTokenSignatureMismatch:      "signature_mismatch",
	CodeTokenAlgorithmMismatch:      "algorithm_mismatch",
	CodeTokenExpiredOrNotYetValid:   "expired_or_not_yet_valid",
	CodeTokenIssuerAudienceMismatch: "issuer_audience_mismatch",
}

var errAlgorithmMismatch = errors.New("unexpected signing algorithm")

// TokenConfig configures a TokenService.
type TokenConfig struct {
	Secret    []byte
	Issuer    string
	Audience  string
	Lifetime  time.Duration
	ClockSkew time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// TokenService issues and validates HS256 bearer tokens.
// It is immutable after construction and safe for concurrent use.
type TokenService struct {
	secret   []byte
	method   *jwt.SigningMethodHMAC
	issuer   string
	audience string
	lifetime time.Duration
	skew     time.Duration
	now      func() time.Time
	parser   *jwt.Parser
	logger   *slog.Logger
}

// NewTokenService creates a TokenService. The secret is copied.
func NewTokenService(cfg TokenConfig, logger *slog.Logger) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("token secret is required")
	}
	if cfg.Issuer == "" {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("token issuer is required")
	}
	if cfg.Audience == "" {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("token audience is required")
	}
	if cfg.Lifetime < time.Second {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("lifetime", cfg.Lifetime.String()).
			Errorf("token lifetime must be at least one second")
	}
	if cfg.ClockSkew < 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("clock_skew", cfg.ClockSkew.String()).
			Errorf("clock skew cannot be negative")
	}
	if logger == nil {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("logger is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenService{
		secret:   append([]byte(nil), cfg.Secret...),
		method:   jwt.SigningMethodHS256,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		lifetime: cfg.Lifetime,
		skew:     cfg.ClockSkew,
		now:      now,
		// Time, issuer and audience checks run in Validate against the injected clock.
		parser: jwt.NewParser(
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
			jwt.WithJSONNumber(),
		),
		logger: logger,
	}, nil
}

// Lifetime returns the fixed lifetime given to every issued token.
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}

// Issue signs custom merged with the standard claims. Standard claims
// replace custom entries of the same name.
func (s *TokenService) Issue(custom map[string]any) (string, error) {
	jti, err := newJTI()
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").With("operation", "generate jti").Wrap(err)
	}

	iat := s.now().Unix()
	exp := iat + int64(s.lifetime/time.Second)

	claims := make(jwt.MapClaims, len(custom)+6)
	for k, v := range custom {
		claims[k] = v
	}
	claims["iss"] = s.issuer
	claims["aud"] = s.audience
	claims["iat"] = iat
	claims["nbf"] = iat - notBeforeLeeway
	claims["exp"] = exp
	claims["jti"] = jti

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").With("operation", "sign token").With("jti", jti).Wrap(err)
	}

	s.logger.Debug("token issued", "jti", jti, "exp", exp)
	return signed, nil
}

// Validate verifies tokenString and returns its payload. Every failure wraps
// ErrInvalidToken; the oops code names the specific check that failed.
func (s *TokenService) Validate(tokenString string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, err := s.parser.ParseWithClaims(tokenString, claims, s.keyFunc); err != nil {
		return nil, s.reject(classifyParseError(err), err.Error(), claims)
	}

	if code, reason := s.checkTimes(claims); code != "" {
		return nil, s.reject(code, reason, claims)
	}
	if code, reason := s.checkIssuerAudience(claims); code != "" {
		return nil, s.reject(code, reason, claims)
	}

	tokenValidations.WithLabelValues("valid").Inc()
	return Claims(claims), nil
}

// keyFunc pins the algorithm before the signature is checked.
func (s *TokenService) keyFunc(t *jwt.Token) (any, error) {
	if t.Method != s.method {
		return nil, fmt.Errorf("%w: %v", errAlgorithmMismatch, t.Header["alg"])
	}
	return s.secret, nil
}

func classifyParseError(err error) string {
	switch {
	case errors.Is(err, errAlgorithmMismatch), errors.Is(err, jwt.ErrTokenUnverifiable):
		return CodeTokenAlgorithmMismatch
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return CodeTokenSignatureMismatch
	default:
		return CodeTokenMalformed
	}
}

func (s *TokenService) checkTimes(claims jwt.MapClaims) (code, reason string) {
	iat, okIat := numericClaim(claims, "iat")
	nbf, okNbf := numericClaim(claims, "nbf")
	exp, okExp := numericClaim(claims, "exp")
	if !okIat || !okNbf || !okExp {
		return CodeTokenMalformed, "missing time claims"
	}
	if nbf > iat || iat >= exp {
		return CodeTokenMalformed, "inconsistent time claims"
	}

	now := s.now().Unix()
	skew := int64(s.skew / time.Second)
	switch {
	case nbf > now+skew:
		return CodeTokenExpiredOrNotYetValid, "token not yet valid"
	case iat > now+skew:
		return CodeTokenExpiredOrNotYetValid, "token issued in the future"
	case exp < now:
		// exp == now is still valid; skew never extends a token past exp.
		return CodeTokenExpiredOrNotYetValid, "token expired"
	}
	return "", ""
}

func (s *TokenService) checkIssuerAudience(claims jwt.MapClaims) (code, reason string) {
	if iss, _ := claims["iss"].(string); iss != s.issuer {
		return CodeTokenIssuerAudienceMismatch, "issuer mismatch"
	}
	if !audienceContains(claims["aud"], s.audience) {
		return CodeTokenIssuerAudienceMismatch, "audience mismatch"
	}
	return "", ""
}

func (s *TokenService) reject(code, reason string, claims jwt.MapClaims) error {
	jti, _ := claims["jti"].(string)
	tokenValidations.WithLabelValues(tokenOutcomes[code]).Inc()
	s.logger.Debug("token rejected", "code", code, "reason", reason, "jti", jti)
	return oops.Code(code).With("jti", jti).Wrapf(ErrInvalidToken, "%s", reason)
}

func audienceContains(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func numericClaim(claims map[string]any, key string) (int64, bool) {
	switch v := claims[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

func newJTI() (string, error) {
	b := make([]byte, jtiBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	return hex.EncodeToString(b), nil
}

// Claims is a validated token payload.
type Claims map[string]any

// UserID returns the "id" claim.
func (c Claims) UserID() (int64, bool) {
	return numericClaim(c, "id")
}

// Email returns the "email" claim.
func (c Claims) Email() string {
	email, _ := c["email"].(string)
	return email
}

// Role returns the "role" claim when it names a known role.
func (c Claims) Role() (Role, bool) {
	s, _ := c["role"].(string)
	r := Role(s)
	return r, r.Valid()
}

// JTI returns the token identifier.
func (c Claims) JTI() string {
	jti, _ := c["jti"].(string)
	return jti
}

// IssuedAt returns the "iat" claim.
func (c Claims) IssuedAt() time.Time {
	return c.unixClaim("iat")
}

// ExpiresAt returns the "exp" claim.
func (c Claims) ExpiresAt() time.Time {
	return c.unixClaim("exp")
}

// Int returns a numeric custom claim.
func (c Claims) Int(key string) (int64, bool) {
	return numericClaim(c, key)
}

func (c Claims) unixClaim(key string) time.Time {
	v, ok := numericClaim(c, key)
	if !ok {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
