// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package mail

import (
	"context"

	"github.com/resend/resend-go/v2"
	"github.com/samber/oops"
)

// emailAPI is the part of the Resend client ResendSender uses.
type emailAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendSender sends through the Resend HTTP API.
type ResendSender struct {
	from string
	api  emailAPI
}

// NewResendSender creates a ResendSender.
func NewResendSender(apiKey, from string) (*ResendSender, error) {
	if apiKey == "" || from == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").
			With("provider", ProviderResend).
			Errorf("api key and sender address are required")
	}
	return &ResendSender{from: from, api: resend.NewClient(apiKey).Emails}, nil
}

// Send implements Sender.
func (s *ResendSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := validateRecipient(to); err != nil {
		return err
	}
	_, err := s.api.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("provider", ProviderResend).
			Wrap(err)
	}
	return nil
}

var _ Sender = (*ResendSender)(nil)
