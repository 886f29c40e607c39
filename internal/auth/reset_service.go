// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/url"
	"time"

	"github.com/samber/oops"
)

// ResetEmailSubject is the subject line of the reset email.
const ResetEmailSubject = "Reset your CourseVoice password"

var resetEmailTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body>
<p>Someone asked to reset the password of your CourseVoice account.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>The link expires at {{.ExpiresAt}}. If you did not ask for a reset you can ignore this email.</p>
</body>
</html>
`))

// ResetConfig configures a PasswordResetService.
type ResetConfig struct {
	// Window is how long an issued token stays redeemable.
	Window time.Duration
	// LinkBaseURL is the page that receives the token as the "token" query parameter.
	LinkBaseURL string
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// PasswordResetService handles password reset operations.
type PasswordResetService struct {
	users   UserRepository
	resets  PasswordResetRepository
	hasher  PasswordHasher
	mailer  Mailer
	window  time.Duration
	linkURL *url.URL
	now     func() time.Time
	logger  *slog.Logger
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	users UserRepository,
	resets PasswordResetRepository,
	hasher PasswordHasher,
	mailer Mailer,
	cfg ResetConfig,
	logger *slog.Logger,
) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("user repository is required")
	}
	if resets == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("reset repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if mailer == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("mailer is required")
	}
	if logger == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("logger is required")
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultResetWindow
	}
	linkURL, err := url.Parse(cfg.LinkBaseURL)
	if err != nil || linkURL.Scheme == "" || linkURL.Host == "" {
		return nil, oops.Code("RESET_SERVICE_INVALID").
			With("link_base_url", cfg.LinkBaseURL).
			Errorf("reset link base url must be an absolute url")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &PasswordResetService{
		users:   users,
		resets:  resets,
		hasher:  hasher,
		mailer:  mailer,
		window:  cfg.Window,
		linkURL: linkURL,
		now:     now,
		logger:  logger,
	}, nil
}

// Issue creates a reset token for userID and returns the raw value.
// Any earlier token of the user is deleted first.
func (s *PasswordResetService) Issue(ctx context.Context, userID int64) (string, error) {
	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").With("operation", "generate token").Wrap(err)
	}

	reset, err := NewPasswordResetToken(userID, hash, s.now().Add(s.window))
	if err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").With("operation", "build token").Wrap(err)
	}

	if err := s.resets.DeleteByUser(ctx, userID); err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "delete previous tokens").
			With("user_id", userID).
			Wrap(err)
	}

	if err := s.resets.Create(ctx, reset); err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "store token").
			With("user_id", userID).
			Wrap(err)
	}

	return token, nil
}

// Redeem looks up a raw token and returns its user. It does not consume the
// token; ResetPassword does. Unknown and expired tokens both wrap
// ErrInvalidResetToken.
func (s *PasswordResetService) Redeem(ctx context.Context, token string) (int64, error) {
	if token == "" {
		resetEvents.WithLabelValues("redeem", "not_found").Inc()
		return 0, oops.Code("RESET_TOKEN_NOT_FOUND").Wrapf(ErrInvalidResetToken, "reset token is empty")
	}

	reset, err := s.resets.GetByTokenHash(ctx, HashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			resetEvents.WithLabelValues("redeem", "not_found").Inc()
			return 0, oops.Code("RESET_TOKEN_NOT_FOUND").Wrapf(ErrInvalidResetToken, "reset token not found")
		}
		return 0, oops.Code("RESET_REDEEM_FAILED").
			With("operation", "get token by hash").
			Wrap(err)
	}

	if reset.IsExpiredAt(s.now()) {
		resetEvents.WithLabelValues("redeem", "expired").Inc()
		return 0, oops.Code("RESET_TOKEN_EXPIRED").
			With("user_id", reset.UserID).
			Wrapf(ErrInvalidResetToken, "reset token has expired")
	}

	resetEvents.WithLabelValues("redeem", "valid").Inc()
	return reset.UserID, nil
}

// RequestReset emails a reset link when email belongs to a user. An unknown
// email returns nil with no side effects so callers answer both cases alike.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			resetEvents.WithLabelValues("request", "unknown_email").Inc()
			s.logger.DebugContext(ctx, "password reset requested for unknown email")
			return nil
		}
		resetEvents.WithLabelValues("request", "error").Inc()
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "find user by email").Wrap(err)
	}

	token, err := s.Issue(ctx, user.ID)
	if err != nil {
		resetEvents.WithLabelValues("request", "error").Inc()
		return oops.Code("RESET_REQUEST_FAILED").With("user_id", user.ID).Wrap(err)
	}

	body, err := s.renderEmail(token)
	if err != nil {
		resetEvents.WithLabelValues("request", "error").Inc()
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "render email").Wrap(err)
	}

	if err := s.mailer.Send(ctx, user.Email, ResetEmailSubject, body); err != nil {
		resetEvents.WithLabelValues("request", "error").Inc()
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "send email").
			With("user_id", user.ID).
			Wrap(err)
	}

	resetEvents.WithLabelValues("request", "sent").Inc()
	s.logger.InfoContext(ctx, "password reset email sent", "user_id", user.ID)
	return nil
}

// ResetPassword redeems token and sets newPassword on its user. The user's
// tokens are deleted before the password changes, so a token never works
// twice even if the update fails.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return oops.Code("RESET_PASSWORD_EMPTY").Errorf("new password cannot be empty")
	}

	userID, err := s.Redeem(ctx, token)
	if err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "find user").
			With("user_id", userID).
			Wrap(err)
	}
	if rules, ok := RulesFor(user.Role); ok && len(newPassword) < rules.MinPasswordLength {
		return oops.Code("RESET_PASSWORD_TOO_SHORT").
			With("min", rules.MinPasswordLength).
			Wrap(FieldErrors{"new_password": "min"})
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	if err := s.resets.DeleteByUser(ctx, userID); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "consume tokens").
			With("user_id", userID).
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, userID, hashed); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", userID).
			Wrap(err)
	}

	resetEvents.WithLabelValues("redeem", "password_changed").Inc()
	s.logger.InfoContext(ctx, "password reset completed", "user_id", userID)
	return nil
}

// PurgeExpired deletes every token already past its expiry.
func (s *PasswordResetService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.resets.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, oops.Code("RESET_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}

// RunJanitor purges expired tokens every interval until ctx is done.
func (s *PasswordResetService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "purge expired reset tokens failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "purged expired reset tokens", "count", n)
			}
		}
	}
}

func (s *PasswordResetService) renderEmail(token string) (string, error) {
	link := *s.linkURL
	q := link.Query()
	q.Set("token", token)
	link.RawQuery = q.Encode()

	var buf bytes.Buffer
	err := resetEmailTemplate.Execute(&buf, struct {
		Link      string
		ExpiresAt string
	}{
		Link:      link.String(),
		ExpiresAt: s.now().Add(s.window).UTC().Format(time.RFC1123),
	})
	if err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	return buf.String(), nil
}
