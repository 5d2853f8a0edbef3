// Package webhook posts admin alerts to an operator-configured HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"concierge_backend/platform/config"
)

const (
	// SignatureHeader carries hex(HMAC-SHA256(secret, timestamp + "." + body)).
	SignatureHeader = "X-Concierge-Signature"
	// TimestampHeader carries the unix seconds used in the signature.
	TimestampHeader = "X-Concierge-Timestamp"
	// EventHeader names the event in the body.
	EventHeader = "X-Concierge-Event"
)

// Client delivers JSON events to one URL. A nil *Client is a valid disabled client.
type Client struct {
	url    string
	secret []byte
	http   *http.Client
	now    func() time.Time
}

// NewClient returns nil when no URL is configured.
func NewClient(cfg config.WebhookConfig) *Client {
	if strings.TrimSpace(cfg.GetAlertWebhookURL()) == "" {
		return nil
	}
	return &Client{
		url:    cfg.GetAlertWebhookURL(),
		secret: []byte(cfg.GetAlertWebhookSecret()),
		http:   &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Enabled reports whether a URL is configured.
func (c *Client) Enabled() bool {
	return c != nil
}

// Send posts payload as the body of event. Non-2xx responses are errors.
func (c *Client) Send(ctx context.Context, event string, payload any) error {
	if c == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	ts := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event)
	req.Header.Set(TimestampHeader, ts)
	if len(c.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(c.secret, ts, body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

// Sign computes the signature receivers verify with Verify.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature in constant time.
func Verify(secret []byte, timestamp string, body []byte, signature string) bool {
	received, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	expected, _ := hex.DecodeString(Sign(secret, timestamp, body))
	return hmac.Equal(received, expected)
}
