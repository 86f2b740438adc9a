package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/idmkit/credential/pkg/domain"
)

// Dispatcher routes credential notifications to their delivery channel.
// Email goes through SMTP when configured; SMS delivery is logged until
// a gateway is wired in. Implements auth.Notifier.
type Dispatcher struct {
	email   *EmailService
	baseURL string
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil email service downgrades
// email delivery to logging, which keeps local development working
// without an SMTP server.
func NewDispatcher(email *EmailService, baseURL string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{email: email, baseURL: baseURL, logger: logger}
}

// Notify delivers an OOB code or enrollment notice.
func (d *Dispatcher) Notify(ctx context.Context, n domain.Notification) error {
	switch n.Channel {
	case domain.ChannelSMS:
		// TODO: wire an SMS gateway; log-only delivery until then.
		d.logger.Info("sms notification", "kind", n.Kind, "recipient", n.Recipient)
		return nil
	case domain.ChannelEmail:
		if d.email == nil {
			d.logger.Info("email notification", "kind", n.Kind, "recipient", n.Recipient)
			return nil
		}
		switch n.Kind {
		case domain.NotifyOOBCode:
			return d.email.SendOOBCodeEmail(n.Recipient, n.Code)
		case domain.NotifyEnrollment:
			return d.email.SendEnrollmentNotice(n.Recipient)
		}
	}
	return fmt.Errorf("unhandled notification: %s via %s", n.Kind, n.Channel)
}

// VerificationCreated mails the registration verification link.
func (d *Dispatcher) VerificationCreated(ctx context.Context, email, token string) error {
	url := fmt.Sprintf("%s/verify-email?token=%s", d.baseURL, token)
	if d.email == nil {
		d.logger.Info("verification link", "recipient", email)
		return nil
	}
	return d.email.SendVerificationEmail(email, url)
}

// PasswordResetInitiated mails the password reset link.
func (d *Dispatcher) PasswordResetInitiated(ctx context.Context, email, token string) error {
	url := fmt.Sprintf("%s/reset-password?token=%s", d.baseURL, token)
	if d.email == nil {
		d.logger.Info("password reset link", "recipient", email)
		return nil
	}
	return d.email.SendPasswordResetEmail(email, url)
}
