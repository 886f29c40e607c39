// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

// Package config loads CourseVoice configuration from defaults, a YAML file,
// the environment and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/coursevoice/coursevoice/internal/auth"
	"github.com/coursevoice/coursevoice/internal/logging"
	"github.com/coursevoice/coursevoice/internal/mail"
	"github.com/coursevoice/coursevoice/internal/sessionstore"
	"github.com/coursevoice/coursevoice/internal/store"
)

// MinSecretLength is the minimum signing secret size in bytes (256 bits).
const MinSecretLength = 32

// Config is the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" json:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics"`
	Database DatabaseConfig `koanf:"database" json:"database"`
	Redis    RedisConfig    `koanf:"redis" json:"redis"`
	Tokens   TokensConfig   `koanf:"tokens" json:"tokens"`
	Session  SessionConfig  `koanf:"session" json:"session"`
	Reset    ResetConfig    `koanf:"reset" json:"reset"`
	Mail     MailConfig     `koanf:"mail" json:"mail"`
	Log      LogConfig      `koanf:"log" json:"log"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr           string   `koanf:"addr" json:"addr" jsonschema:"description=API listen address (host:port)"`
	CORSOrigins    []string `koanf:"cors_origins" json:"cors_origins" jsonschema:"description=Browser origins allowed to call the API with credentials"`
	TrustedProxies []string `koanf:"trusted_proxies" json:"trusted_proxies" jsonschema:"description=Proxy CIDRs whose X-Forwarded-For is trusted for the client IP"`
	TLSCert        string   `koanf:"tls_cert" json:"tls_cert" jsonschema:"description=PEM certificate file; serves HTTPS together with tls_key"`
	TLSKey         string   `koanf:"tls_key" json:"tls_key" jsonschema:"description=PEM private key file for tls_cert"`
}

// TLSEnabled reports whether the API listener serves HTTPS.
func (h HTTPConfig) TLSEnabled() bool {
	return h.TLSCert != "" && h.TLSKey != ""
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr" jsonschema:"description=Metrics and health check listen address; empty disables it"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL             string        `koanf:"url" json:"url" jsonschema:"description=PostgreSQL connection URL"`
	ConnectAttempts uint64        `koanf:"connect_attempts" json:"connect_attempts" jsonschema:"minimum=1"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff" json:"connect_backoff"`
}

// RedisConfig configures the shared Redis used for sessions and the mail queue.
type RedisConfig struct {
	URL string `koanf:"url" json:"url" jsonschema:"description=Redis URL; empty keeps sessions in the signed cookie"`
}

// TokensConfig configures bearer token issuance and validation.
type TokensConfig struct {
	Secret    string        `koanf:"secret" json:"secret" jsonschema:"description=HMAC signing secret, at least 32 bytes"`
	Issuer    string        `koanf:"issuer" json:"issuer"`
	Audience  string        `koanf:"audience" json:"audience"`
	Lifetime  time.Duration `koanf:"lifetime" json:"lifetime"`
	ClockSkew time.Duration `koanf:"clock_skew" json:"clock_skew"`
}

// SessionConfig configures cookie sessions.
type SessionConfig struct {
	Secret            string        `koanf:"secret" json:"secret" jsonschema:"description=Cookie signing secret, at least 32 bytes"`
	PreviousSecret    string        `koanf:"previous_secret" json:"previous_secret" jsonschema:"description=Secret still accepted for cookies signed before a rotation"`
	CookieName        string        `koanf:"cookie_name" json:"cookie_name"`
	KeyPrefix         string        `koanf:"key_prefix" json:"key_prefix"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" json:"idle_timeout"`
	AbsoluteLifetime  time.Duration `koanf:"absolute_lifetime" json:"absolute_lifetime"`
	MaxFailedAttempts int           `koanf:"max_failed_attempts" json:"max_failed_attempts" jsonschema:"minimum=1"`
	SecureCookie      bool          `koanf:"secure_cookie" json:"secure_cookie"`
}

// ResetConfig configures password resets.
type ResetConfig struct {
	Window        time.Duration `koanf:"window" json:"window"`
	LinkBaseURL   string        `koanf:"link_base_url" json:"link_base_url"`
	PurgeInterval time.Duration `koanf:"purge_interval" json:"purge_interval"`
}

// MailConfig configures outbound email.
type MailConfig struct {
	Provider     string     `koanf:"provider" json:"provider" jsonschema:"enum=log,enum=smtp,enum=resend"`
	From         string     `koanf:"from" json:"from"`
	SMTP         SMTPConfig `koanf:"smtp" json:"smtp"`
	ResendAPIKey string     `koanf:"resend_api_key" json:"resend_api_key"`
	Async        bool       `koanf:"async" json:"async" jsonschema:"description=Deliver through the Redis-backed queue"`
}

// SMTPConfig configures the SMTP provider.
type SMTPConfig struct {
	Host     string `koanf:"host" json:"host"`
	Port     int    `koanf:"port" json:"port" jsonschema:"minimum=1,maximum=65535"`
	Username string `koanf:"username" json:"username"`
	Password string `koanf:"password" json:"password"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// defaults returns the baseline configuration as a flat koanf map. Every
// key is listed so environment variables can be mapped onto known keys.
func defaults() map[string]any {
	return map[string]any{
		"http.addr":                   ":8080",
		"http.cors_origins":           []string{},
		"http.trusted_proxies":        []string{},
		"http.tls_cert":               "",
		"http.tls_key":                "",
		"metrics.addr":                ":9100",
		"database.url":                "",
		"database.connect_attempts":   uint64(10),
		"database.connect_backoff":    "500ms",
		"redis.url":                   "",
		"tokens.secret":               "",
		"tokens.issuer":               "coursevoice",
		"tokens.audience":             "coursevoice-api",
		"tokens.lifetime":             "1h",
		"tokens.clock_skew":           "60s",
		"session.secret":              "",
		"session.previous_secret":     "",
		"session.cookie_name":         auth.DefaultSessionCookieName,
		"session.key_prefix":          sessionstore.DefaultKeyPrefix,
		"session.idle_timeout":        "30m",
		"session.absolute_lifetime":   "8h",
		"session.max_failed_attempts": 5,
		"session.secure_cookie":       true,
		"reset.window":                "1h",
		"reset.link_base_url":         "http://localhost:5173/reset-password",
		"reset.purge_interval":        "1h",
		"mail.provider":               mail.ProviderLog,
		"mail.from":                   "CourseVoice <no-reply@coursevoice.local>",
		"mail.smtp.host":              "",
		"mail.smtp.port":              587,
		"mail.smtp.username":          "",
		"mail.smtp.password":          "",
		"mail.resend_api_key":         "",
		"mail.async":                  false,
		"log.format":                  "json",
		"log.level":                   "info",
	}
}

// Validate reports every invalid setting in one CONFIG_INVALID error.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Database.URL == "" {
		add("database.url is required")
	}
	if c.Database.ConnectAttempts == 0 {
		add("database.connect_attempts must be at least 1")
	}

	if len(c.Tokens.Secret) < MinSecretLength {
		add("tokens.secret must be at least %d bytes", MinSecretLength)
	}
	if len(c.Session.Secret) < MinSecretLength {
		add("session.secret must be at least %d bytes", MinSecretLength)
	}
	if c.Session.PreviousSecret != "" && len(c.Session.PreviousSecret) < MinSecretLength {
		add("session.previous_secret must be at least %d bytes", MinSecretLength)
	}
	if c.Tokens.Secret != "" && c.Tokens.Secret == c.Session.Secret {
		add("tokens.secret and session.secret must differ")
	}
	if (c.HTTP.TLSCert == "") != (c.HTTP.TLSKey == "") {
		add("http.tls_cert and http.tls_key must be set together")
	}
	if c.Tokens.Issuer == "" || c.Tokens.Audience == "" {
		add("tokens.issuer and tokens.audience are required")
	}

	for key, d := range map[string]time.Duration{
		"database.connect_backoff":  c.Database.ConnectBackoff,
		"tokens.lifetime":           c.Tokens.Lifetime,
		"session.idle_timeout":      c.Session.IdleTimeout,
		"session.absolute_lifetime": c.Session.AbsoluteLifetime,
		"reset.window":              c.Reset.Window,
		"reset.purge_interval":      c.Reset.PurgeInterval,
	} {
		if d <= 0 {
			add("%s must be positive", key)
		}
	}
	if c.Tokens.ClockSkew < 0 {
		add("tokens.clock_skew must not be negative")
	}
	if c.Session.IdleTimeout > c.Session.AbsoluteLifetime {
		add("session.idle_timeout must not exceed session.absolute_lifetime")
	}
	if c.Session.MaxFailedAttempts < 1 {
		add("session.max_failed_attempts must be at least 1")
	}
	if c.Session.CookieName == "" {
		add("session.cookie_name is required")
	}

	if u, err := url.Parse(c.Reset.LinkBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("reset.link_base_url must be an absolute URL")
	}

	switch c.Mail.Provider {
	case mail.ProviderLog:
	case mail.ProviderSMTP:
		if c.Mail.SMTP.Host == "" {
			add("mail.smtp.host is required for the smtp provider")
		}
	case mail.ProviderResend:
		if c.Mail.ResendAPIKey == "" {
			add("mail.resend_api_key is required for the resend provider")
		}
	default:
		add("mail.provider must be one of log, smtp, resend")
	}
	if c.Mail.From == "" {
		add("mail.from is required")
	}
	if c.Mail.Async && c.Redis.URL == "" {
		add("mail.async requires redis.url")
	}

	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		add("log.format must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level must be debug, info, warn or error")
	}

	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return oops.Code("CONFIG_INVALID").
		With("problems", problems).
		Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

// ValidateDatabase checks only the settings needed to reach PostgreSQL.
func (c *Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("problems", []string{"database.url is required"}).
			Errorf("invalid configuration: database.url is required")
	}
	return nil
}

// TokenConfig returns the token service settings.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:    []byte(c.Tokens.Secret),
		Issuer:    c.Tokens.Issuer,
		Audience:  c.Tokens.Audience,
		Lifetime:  c.Tokens.Lifetime,
		ClockSkew: c.Tokens.ClockSkew,
	}
}

// SessionConfig returns the session lifecycle settings.
func (c *Config) SessionConfig() auth.SessionConfig {
	return auth.SessionConfig{
		IdleTimeout:       c.Session.IdleTimeout,
		AbsoluteLifetime:  c.Session.AbsoluteLifetime,
		MaxFailedAttempts: c.Session.MaxFailedAttempts,
		SecureCookie:      c.Session.SecureCookie,
	}
}

// ResetConfig returns the password reset settings.
func (c *Config) ResetConfig() auth.ResetConfig {
	return auth.ResetConfig{
		Window:      c.Reset.Window,
		LinkBaseURL: c.Reset.LinkBaseURL,
	}
}

// SessionStoreConfig returns the session storage settings.
func (c *Config) SessionStoreConfig() sessionstore.Config {
	cfg := sessionstore.Config{
		RedisURL:  c.Redis.URL,
		KeyPrefix: c.Session.KeyPrefix,
		Secret:    []byte(c.Session.Secret),
	}
	if c.Session.PreviousSecret != "" {
		cfg.PreviousSecret = []byte(c.Session.PreviousSecret)
	}
	return cfg
}

// MailConfig returns the mail delivery settings.
func (c *Config) MailConfig() mail.Config {
	return mail.Config{
		Provider: c.Mail.Provider,
		From:     c.Mail.From,
		SMTP: mail.SMTPConfig{
			Host:     c.Mail.SMTP.Host,
			Port:     c.Mail.SMTP.Port,
			Username: c.Mail.SMTP.Username,
			Password: c.Mail.SMTP.Password,
			From:     c.Mail.From,
		},
		ResendAPIKey: c.Mail.ResendAPIKey,
		Async:        c.Mail.Async,
		RedisURL:     c.Redis.URL,
	}
}

// ConnectConfig returns the database connection settings.
func (c *Config) ConnectConfig() store.ConnectConfig {
	return store.ConnectConfig{
		URL:         c.Database.URL,
		MaxAttempts: c.Database.ConnectAttempts,
		BaseBackoff: c.Database.ConnectBackoff,
	}
}

// LogLevel returns the parsed log level. Validate has already rejected
// unknown names.
func (c *Config) LogLevel() slog.Level {
	level, _ := logging.ParseLevel(c.Log.Level)
	return level
}
