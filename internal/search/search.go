// Package search holds the pluggable search backends the assistant's tools call out to,
// plus a rate limiting wrapper and a readable-article extractor for web pages.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Backend is a single search source
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Result is one search hit in source-neutral form
type Result struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet,omitempty"`
	Source    string `json:"source,omitempty"`
	Published string `json:"published,omitempty"`
}

var ErrMissingToken = errors.New("search backend requires an API key")

type clientConfig struct {
	client  *http.Client
	baseURL string
}

// Option configures a backend client
type Option func(*clientConfig)

// WithClient sets the HTTP client used for requests
func WithClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.client = client
	}
}

// WithBaseURL points a backend at a different host, mainly for tests
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithTimeout sets the per-request timeout on a fresh client
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.client = &http.Client{Timeout: timeout}
	}
}

func newClientConfig(defaultBaseURL string, options []Option) clientConfig {
	cfg := clientConfig{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
	}
	for _, option := range options {
		option(&cfg)
	}
	return cfg
}

// get performs req and returns the body of a 200 response
func (c clientConfig) get(req *http.Request, backend string) ([]byte, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", backend, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", backend, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("%s returned status %d: %s", backend, resp.StatusCode, msg)
	}
	return body, nil
}

func clampLimit(limit, max int) int {
	if limit <= 0 {
		return 5
	}
	if limit > max {
		return max
	}
	return limit
}
