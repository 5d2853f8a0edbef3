package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"concierge_backend/internal/leadscores/transport"
)

const syncPath = "/api/v1/lead-scores/sync"

// HTTPSyncer posts snapshots to a running API.
type HTTPSyncer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSyncer(baseURL string, client *http.Client) *HTTPSyncer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSyncer{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *HTTPSyncer) Sync(ctx context.Context, req transport.SyncRequest) (transport.LeadScoreResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return transport.LeadScoreResponse{}, fmt.Errorf("marshal sync request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+syncPath, bytes.NewReader(body))
	if err != nil {
		return transport.LeadScoreResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return transport.LeadScoreResponse{}, fmt.Errorf("sync request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return transport.LeadScoreResponse{}, fmt.Errorf("sync returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out transport.LeadScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return transport.LeadScoreResponse{}, fmt.Errorf("decode sync response: %w", err)
	}
	return out, nil
}
