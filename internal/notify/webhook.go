package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pulsestack/pulse-sentinel/internal/models"
)

// WebhookSender POSTs each notification as a JSON document to an HTTP
// endpoint.
type WebhookSender struct {
	url        string
	headers    map[string]string
	httpClient *http.Client
}

// NewWebhookSender creates a webhook transport targeting the given URL.
func NewWebhookSender(url string, headers map[string]string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		url:        url,
		headers:    headers,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send posts the notification, treating any non-2xx status as failure.
func (s *WebhookSender) Send(ctx context.Context, n models.Notification) error {
	if s.url == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

// Close is a no-op; the underlying http.Client needs no teardown.
func (s *WebhookSender) Close() error { return nil }
