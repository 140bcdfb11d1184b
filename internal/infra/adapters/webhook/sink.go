package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"crypto-role-subscription/internal/config"
	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/ports/adapter"
)

var _ adapter.NotificationSink = (*Sink)(nil)

// Sink posts JSON payloads to admin-configured URLs. Delivery is at most
// once: failures are returned, never retried here.
type Sink struct {
	client    *http.Client
	userAgent string
}

func NewSink(cfg config.WebhookConfig, userAgent string) *Sink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sink{client: &http.Client{Timeout: timeout}, userAgent: userAgent}
}

func (s *Sink) Notify(ctx context.Context, target string, payload map[string]any) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: invalid webhook url", domain.ErrNotificationFailed)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", domain.ErrNotificationFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotificationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotificationFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: http %d", domain.ErrNotificationFailed, resp.StatusCode)
	}
	return nil
}
