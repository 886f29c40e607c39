// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package mail

import (
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"
)

// Config selects a provider and optional queued delivery.
type Config struct {
	Provider     string
	From         string
	SMTP         SMTPConfig
	ResendAPIKey string
	// Async routes sends through the asynq queue at RedisURL.
	Async    bool
	RedisURL string
}

// Mailer is the configured sender plus the resources it owns.
type Mailer struct {
	Sender
	// Worker is set when Async is enabled; the caller runs it.
	Worker *Worker
	closer func() error
}

// Close releases the queue client, if any.
func (m *Mailer) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// New builds the sender described by cfg.
func New(cfg Config, logger *slog.Logger) (*Mailer, error) {
	delivery, err := newProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	if !cfg.Async {
		return &Mailer{Sender: delivery}, nil
	}

	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").
			With("operation", "parse queue redis url").
			Wrap(err)
	}
	client := asynq.NewClient(opt)
	return &Mailer{
		Sender: NewQueueSender(client, logger),
		Worker: NewWorker(opt, delivery, logger),
		closer: client.Close,
	}, nil
}

func newProvider(cfg Config, logger *slog.Logger) (Sender, error) {
	switch cfg.Provider {
	case "", ProviderLog:
		return NewLogSender(logger), nil
	case ProviderSMTP:
		smtp := cfg.SMTP
		if smtp.From == "" {
			smtp.From = cfg.From
		}
		sender, err := NewSMTPSender(smtp)
		if err != nil {
			return nil, err
		}
		return sender, nil
	case ProviderResend:
		sender, err := NewResendSender(cfg.ResendAPIKey, cfg.From)
		if err != nil {
			return nil, err
		}
		return sender, nil
	default:
		return nil, oops.Code("MAIL_CONFIG_INVALID").
			With("provider", cfg.Provider).
			Errorf("unknown mail provider %q", cfg.Provider)
	}
}
