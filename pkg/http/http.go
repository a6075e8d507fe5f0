package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/retry"
)

// Config holds timeouts and retry policy for Client.
type Config struct {
	Retry           *retry.Config
	Timeout         time.Duration
	IdleConnTimeout time.Duration
	MaxResponseSize int64 // bytes kept from an error body
}

func DefaultConfig() *Config {
	return &Config{
		Retry: &retry.Config{
			MaxRetries:      4,
			InitialDelay:    500 * time.Millisecond,
			MaxDelay:        10 * time.Second,
			BackoffFactor:   2.0,
			JitterFactor:    0.1,
			LogRetryAttempt: true,
		},
		Timeout:         10 * time.Second,
		IdleConnTimeout: 30 * time.Second,
		MaxResponseSize: 4096,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.IdleConnTimeout <= 0 {
		return fmt.Errorf("idleConnTimeout must be positive")
	}
	if c.MaxResponseSize < 0 {
		return fmt.Errorf("maxResponseSize must be >= 0")
	}
	if c.Retry == nil {
		return fmt.Errorf("retry config is required")
	}
	return c.Retry.Validate()
}

// StatusError is a non-2xx response. Body holds at most MaxResponseSize bytes.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, truncate(string(e.Body), 200))
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ShouldRetry retries transport errors and retryable statuses.
func ShouldRetry(err error, _ int) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Client wraps http.Client with retries on 5xx, 429 and transport errors.
type Client struct {
	client *http.Client
	config *Config
	logger logging.Logger
}

func NewClient(config *Config, logger logging.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid HTTP client config: %w", err)
	}
	if config.Retry.ShouldRetry == nil {
		config.Retry.ShouldRetry = ShouldRetry
	}

	client := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			IdleConnTimeout: config.IdleConnTimeout,
			DialContext: (&net.Dialer{
				Timeout:   config.Timeout / 2,
				KeepAlive: config.IdleConnTimeout,
			}).DialContext,
			TLSHandshakeTimeout:   config.Timeout / 2,
			ResponseHeaderTimeout: config.Timeout / 2,
		},
	}

	return &Client{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// DoWithRetry sends req until it gets a non-retryable answer. A response with
// a retryable status is drained and turned into a *StatusError; other
// responses, 4xx included, are returned for the caller to close.
func (c *Client) DoWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.GetBody == nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("error reading request body for retry: %w", err)
		}
		_ = req.Body.Close()
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	operation := func() (*http.Response, error) {
		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to get request body: %w", err)
			}
			attempt.Body = body
		}

		resp, err := c.client.Do(attempt)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, c.statusError(resp)
		}
		return resp, nil
	}

	return retry.Retry(ctx, operation, c.config.Retry, c.logger)
}

// DoJSON sends in as a JSON body (nil for none) and decodes a 2xx response
// into out (nil to discard). Non-2xx answers come back as *StatusError.
func (c *Client) DoJSON(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.DoWithRetry(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warnf("Failed to close response body: %v", cerr)
		}
	}()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.DoJSON(ctx, http.MethodGet, url, nil, out)
}

func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	return c.DoJSON(ctx, http.MethodPost, url, in, out)
}

// statusError reads a bounded body and closes the response.
func (c *Client) statusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseSize))
	if err := resp.Body.Close(); err != nil {
		c.logger.Warnf("Failed to close response body: %v", err)
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: body}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Close closes idle connections
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
