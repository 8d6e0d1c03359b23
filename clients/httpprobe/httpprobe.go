// Package httpprobe checks that an HTTP endpoint answers with an expected status code.
package httpprobe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const defaultRequestTimeout = 5 * time.Second

// Checker probes one URL.
type Checker struct {
	URL    string
	Status int
	Logger *slog.Logger

	client *http.Client
}

// Option configures a Checker.
type Option func(*Checker)

// WithStatus sets the expected status code, 200 by default.
func WithStatus(code int) Option {
	return func(c *Checker) { c.Status = code }
}

// WithClient replaces the HTTP client.
func WithClient(client *http.Client) Option {
	return func(c *Checker) { c.client = client }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) { c.Logger = logger }
}

// New creates a Checker for rawURL, which must include a scheme.
func New(rawURL string, opts ...Option) (*Checker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid probe URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("probe URL must include scheme and host: %q", rawURL)
	}

	c := &Checker{
		URL:    rawURL,
		Status: http.StatusOK,
		Logger: slog.Default(),
		client: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Check performs one GET and returns the status code.
func (c *Checker) Check(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request to %s failed: %w", c.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Ready reports whether the endpoint answered with the expected status.
// It implements poll.Probe.
func (c *Checker) Ready(ctx context.Context) bool {
	code, err := c.Check(ctx)
	if err != nil {
		c.Logger.Debug("probe not ready", "url", c.URL, "error", err)
		return false
	}
	if code != c.Status {
		c.Logger.Debug("probe not ready", "url", c.URL, "status", code, "want", c.Status)
		return false
	}
	return true
}
