// Package whatsapp sends admin alerts through a GOWA gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"concierge_backend/platform/config"
	"concierge_backend/platform/logger"
	"concierge_backend/platform/phone"
)

const (
	sendMessagePath = "/send/message"
	requestTimeout  = 10 * time.Second
	maxErrorBody    = 2048
)

// Client is safe to use as a nil pointer, which means the channel is off.
type Client struct {
	endpoint string
	auth     string
	deviceID string
	http     *http.Client
	log      *logger.Logger
}

// VIPAlert is what the admin sees on their phone.
type VIPAlert struct {
	SessionID string
	Email     string
	Score     int
	Tier      string
	AlertType string
	Breakdown map[string]int
	Link      string
}

type sendMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NewClient returns nil when no gateway URL is configured.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	base := strings.TrimRight(cfg.GetWhatsAppURL(), "/")
	if base == "" {
		return nil
	}
	c := &Client{
		endpoint: base + sendMessagePath,
		deviceID: cfg.GetWhatsAppDeviceID(),
		http:     &http.Client{Timeout: requestTimeout},
		log:      log,
	}
	if key := cfg.GetWhatsAppKey(); key != "" {
		c.auth = basicAuth(key)
	}
	return c
}

func (c *Client) Enabled() bool {
	return c != nil
}

func (c *Client) SendVIPAlert(ctx context.Context, phoneNumber string, alert VIPAlert) error {
	return c.SendMessage(ctx, phoneNumber, FormatVIPAlert(alert))
}

// SendMessage delivers text to phoneNumber. The gateway wants the E.164
// number without the leading plus.
func (c *Client) SendMessage(ctx context.Context, phoneNumber, text string) error {
	if c == nil {
		return nil
	}
	if !phone.IsValid(phoneNumber) {
		return fmt.Errorf("invalid whatsapp recipient %q", phoneNumber)
	}
	recipient := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")

	if err := c.post(ctx, sendMessageRequest{Phone: recipient, Message: text}); err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	c.log.Info("whatsapp alert sent", "recipient_suffix", suffix(recipient, 4))
	return nil
}

func (c *Client) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// FormatVIPAlert renders alert as plain text, one scoring rule per line in
// name order.
func FormatVIPAlert(alert VIPAlert) string {
	lines := []string{
		fmt.Sprintf("*VIP lead* (%s)", alert.AlertType),
		fmt.Sprintf("Score: %d (%s)", alert.Score, alert.Tier),
	}
	if alert.Email != "" {
		lines = append(lines, "Email: "+alert.Email)
	}
	lines = append(lines, "Session: "+alert.SessionID)
	for _, rule := range slices.Sorted(maps.Keys(alert.Breakdown)) {
		lines = append(lines, fmt.Sprintf("- %s: %d", rule, alert.Breakdown[rule]))
	}
	if alert.Link != "" {
		lines = append(lines, alert.Link)
	}
	return strings.Join(lines, "\n")
}

// basicAuth accepts either "user:pass" or a ready "Basic ..." header value.
func basicAuth(key string) string {
	if strings.HasPrefix(strings.ToLower(key), "basic ") {
		return key
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(key))
}

func suffix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
