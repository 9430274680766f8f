// Package mailer is the email delivery capability injected into the
// auth service. The absence of SMTP configuration is modeled as an
// explicit LogMailer rather than a nil check at every call site.
package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Mailer delivers a rendered message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogMailer is the development-mode variant: it logs the message
// instead of sending it, which still counts as successful delivery.
type LogMailer struct {
	Logger *zap.Logger
}

var _ Mailer = (*LogMailer)(nil)

func (m *LogMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	logger := m.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Info("email delivery not configured, logging message",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", htmlBody),
	)
	return nil
}
