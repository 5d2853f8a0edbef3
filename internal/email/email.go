// Package email renders admin alert emails and hands them to a transport:
// SMTP when a host is configured, otherwise the Brevo API, otherwise nothing.
package email

import (
	"context"

	"concierge_backend/platform/config"
)

// VIPAlert is the content of an admin escalation email.
type VIPAlert struct {
	SessionID    string
	Email        string
	Score        int
	Tier         string
	AlertType    string
	Breakdown    map[string]int
	DashboardURL string
}

type Sender interface {
	SendVIPAlertEmail(ctx context.Context, toEmail string, alert VIPAlert) error
	SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error
}

// SenderConfig is what NewSender needs to pick a transport.
type SenderConfig interface {
	config.EmailConfig
	config.SMTPConfig
}

// NoopSender accepts everything and sends nothing.
type NoopSender struct{}

func (NoopSender) SendVIPAlertEmail(context.Context, string, VIPAlert) error { return nil }

func (NoopSender) SendCustomEmail(context.Context, string, string, string) error { return nil }

// transport moves one rendered HTML message.
type transport interface {
	deliver(ctx context.Context, toEmail, subject, htmlContent string) error
	name() string
}

// Mailer renders messages and passes them to its transport.
type Mailer struct {
	transport transport
}

// Transport names the transport in use, "smtp" or "brevo".
func (m *Mailer) Transport() string {
	return m.transport.name()
}

func (m *Mailer) SendVIPAlertEmail(ctx context.Context, toEmail string, alert VIPAlert) error {
	subject, content, err := renderVIPAlert(alert)
	if err != nil {
		return err
	}
	return m.transport.deliver(ctx, toEmail, subject, content)
}

func (m *Mailer) SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error {
	return m.transport.deliver(ctx, toEmail, subject, htmlContent)
}

// NewSender picks SMTP over Brevo, and NoopSender when neither is enabled.
func NewSender(cfg SenderConfig) (Sender, error) {
	switch {
	case cfg.IsSMTPEnabled():
		return NewSMTPSender(
			cfg.GetSMTPHost(), cfg.GetSMTPPort(),
			cfg.GetSMTPUsername(), cfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(), cfg.GetEmailFromName(),
		), nil
	case cfg.GetEmailEnabled():
		return NewBrevoSender(cfg.GetBrevoAPIKey(), cfg.GetEmailFromName(), cfg.GetEmailFromAddress(), brevoEndpoint), nil
	default:
		return NoopSender{}, nil
	}
}
