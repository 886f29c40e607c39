// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

// Package mail delivers transactional email: password reset links today.
// Providers are SMTP (gomail), the Resend HTTP API, and a logging sender for
// development. Any provider can be put behind an asynq queue.
package mail

import (
	"context"
	"log/slog"
	"net/mail"

	"github.com/samber/oops"
)

// Sender delivers one HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Provider names accepted in configuration.
const (
	ProviderLog    = "log"
	ProviderSMTP   = "smtp"
	ProviderResend = "resend"
)

// LogSender records that a message would have been sent. The body is not
// logged because reset mails carry a live token.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := validateRecipient(to); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "mail not delivered, log provider active",
		"to", to,
		"subject", subject,
		"body_bytes", len(htmlBody))
	return nil
}

func validateRecipient(to string) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return oops.Code("MAIL_INVALID_RECIPIENT").With("to", to).Wrap(err)
	}
	return nil
}

var _ Sender = (*LogSender)(nil)
