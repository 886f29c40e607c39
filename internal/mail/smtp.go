// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package mail

import (
	"context"

	"github.com/samber/oops"
	"gopkg.in/gomail.v2"
)

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// dialer is the part of gomail.Dialer SMTPSender uses.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends through an SMTP relay.
type SMTPSender struct {
	from   string
	dialer dialer
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, oops.Code("MAIL_CONFIG_INVALID").
			With("provider", ProviderSMTP).
			Errorf("smtp host and port are required")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").
			With("provider", ProviderSMTP).
			Errorf("sender address is required")
	}
	return &SMTPSender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

// Send implements Sender. gomail has no context support, so ctx is only
// checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := validateRecipient(to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("provider", ProviderSMTP).Wrap(err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("provider", ProviderSMTP).
			Wrap(err)
	}
	return nil
}

var _ Sender = (*SMTPSender)(nil)
