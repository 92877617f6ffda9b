package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/chatenrich/event"
)

// Webhook POSTs each panel event to a URL. Every delivery of an event
// carries the event id as Idempotency-Key, so receivers can drop the
// duplicates a retry produces. Server errors, 408, 429 and transport
// failures are retried with doubling backoff; other 4xx are final.
type Webhook struct {
	url     string
	client  *http.Client
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetry sets the number of retries after the first delivery and
// the first retry delay. Defaults: 3, 1s.
func WithWebhookRetry(n int, backoff time.Duration) WebhookOption {
	return func(w *Webhook) { w.retries, w.backoff = n, backoff }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook sink targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		retries: 3,
		backoff: time.Second,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) Send(ctx context.Context, e event.Event) error {
	body, err := json.Marshal(envelope{Type: "panel", Data: e})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	delay := w.backoff
	for attempt := 0; ; attempt++ {
		retry, err := w.post(ctx, e, body)
		if err == nil {
			return nil
		}
		if !retry || attempt == w.retries {
			return fmt.Errorf("webhook: event %s: %w", e.ID, err)
		}
		w.logger.Warn("webhook: delivery failed", "event_id", e.ID, "attempt", attempt+1, "error", err)

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
		delay *= 2
	}
}

// post delivers body once and reports whether a failure is worth retrying.
func (w *Webhook) post(ctx context.Context, e event.Event, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", e.ID)
	req.Header.Set("X-Chatenrich-State", string(e.State))

	resp, err := w.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	resp.Body.Close()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return false, nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return true, fmt.Errorf("status %d", code)
	default:
		return false, fmt.Errorf("status %d", code)
	}
}

func (w *Webhook) Close() error { return nil }
