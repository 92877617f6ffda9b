package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client calls the enrichment service with per-attempt timeouts and a
// linear retry schedule for timeouts and network failures.
type Client struct {
	baseURL    string
	http       *http.Client
	timeout    time.Duration
	backoff    time.Duration
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each attempt. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithBackoff sets the retry unit; attempt n waits n×unit. Default: 1s.
func WithBackoff(unit time.Duration) Option {
	return func(c *Client) { c.backoff = unit }
}

// WithMaxRetries sets how many extra attempts follow a retryable failure.
// Default: 2.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithSleep replaces the backoff sleep (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{},
		timeout:    30 * time.Second,
		backoff:    time.Second,
		maxRetries: 2,
		sleep:      Sleep,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ProcessQuery asks the service for enrichment content. It never returns an
// error: failures come back as a Result with Success=false and the error
// classification filled in, ready to be rendered.
func (c *Client) ProcessQuery(ctx context.Context, req Request) *Result {
	for attempt := 0; ; attempt++ {
		res, ee := c.answer(ctx, req)
		if ee == nil {
			return res
		}

		if ee.autoRetry() && attempt < c.maxRetries {
			delay := time.Duration(attempt+1) * c.backoff
			c.logger.Warn("enrichment: attempt failed, retrying",
				"attempt", attempt+1, "kind", ee.Kind, "delay", delay, "error", ee.Err)
			if err := c.sleep(ctx, delay); err != nil {
				return failure(&Error{Kind: KindGeneric, Err: err})
			}
			continue
		}

		c.logger.Error("enrichment: request failed",
			"attempts", attempt+1, "kind", ee.Kind, "status", ee.Status, "error", ee.Err)
		return failure(ee)
	}
}

func (c *Client) answer(ctx context.Context, req Request) (*Result, *Error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindGeneric, Err: fmt.Errorf("marshal: %w", err)}
	}

	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	hreq, err := http.NewRequestWithContext(actx, http.MethodPost, c.baseURL+"/answer", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindGeneric, Err: fmt.Errorf("new request: %w", err)}
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, classify(actx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, statusError(resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&res); err != nil {
		if actx.Err() != nil {
			return nil, classify(actx, err)
		}
		return nil, &Error{Kind: KindGeneric, Err: fmt.Errorf("decode: %w", err)}
	}

	if res.Success {
		res.Error = ""
		res.ErrorType = ""
		res.Retryable = false
	} else {
		// The service answered but could not produce content.
		if res.Error == "" {
			res.Error = "The enrichment service could not answer this query."
		}
		res.ErrorType = KindServer
		res.Retryable = true
	}
	return &res, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("enrichment: health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(actx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}
	var h Health
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&h); err != nil {
		return nil, fmt.Errorf("enrichment: health decode: %w", err)
	}
	return &h, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
