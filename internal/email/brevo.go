package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	brevoEndpoint = "https://api.brevo.com/v3/smtp/email"
	brevoTimeout  = 10 * time.Second
)

type brevoContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoEmailRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

type brevoTransport struct {
	apiKey   string
	from     brevoContact
	endpoint string
	client   *http.Client
}

// NewBrevoSender sends through the Brevo transactional API at endpoint.
func NewBrevoSender(apiKey, fromName, fromEmail, endpoint string) *Mailer {
	return &Mailer{transport: &brevoTransport{
		apiKey:   apiKey,
		from:     brevoContact{Name: fromName, Email: fromEmail},
		endpoint: endpoint,
		client:   &http.Client{Timeout: brevoTimeout},
	}}
}

func (b *brevoTransport) name() string { return "brevo" }

func (b *brevoTransport) deliver(ctx context.Context, toEmail, subject, htmlContent string) error {
	body, err := json.Marshal(brevoEmailRequest{
		Sender:      b.from,
		To:          []brevoContact{{Email: toEmail}},
		Subject:     subject,
		HTMLContent: htmlContent,
	})
	if err != nil {
		return fmt.Errorf("brevo payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", b.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("brevo send: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
