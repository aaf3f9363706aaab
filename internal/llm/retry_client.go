package llm

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// RetryConfig holds retry configuration. Only transport failures and 5xx
// responses are retried; 429 is returned to the caller untouched so the
// orchestrator can surface the vendor's Retry-After hint.
type RetryConfig struct {
	MaxAttempts       int           // Total attempts including the first
	Multiplier        int           // Exponential backoff multiplier
	MaxWaitPerAttempt time.Duration // Maximum wait time per attempt
	MaxTotalWait      time.Duration // Maximum total wait time
}

// DefaultRetryConfig returns the default: a single attempt
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       1,
		Multiplier:        1,
		MaxWaitPerAttempt: 10 * time.Second,
		MaxTotalWait:      30 * time.Second,
	}
}

// RetryClient wraps http.Client with retry logic
type RetryClient struct {
	client *http.Client
	config *RetryConfig
}

// NewRetryClient creates a retry client with the given request timeout
func NewRetryClient(timeout time.Duration, config *RetryConfig) *RetryClient {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &RetryClient{
		client: &http.Client{Timeout: timeout},
		config: config,
	}
}

// Do executes an HTTP request with retry logic.
// The last response is returned as-is when retries are exhausted on a 5xx.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	totalStart := time.Now()

	var resp *http.Response
	var err error

	for attempt := 0; attempt < rc.config.MaxAttempts; attempt++ {
		attemptReq := req
		if attempt > 0 {
			attemptReq, err = rewind(req)
			if err != nil {
				return nil, err
			}
		}

		resp, err = rc.client.Do(attemptReq)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if ctx.Err() != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return nil, ctx.Err()
		}

		if attempt == rc.config.MaxAttempts-1 {
			break
		}

		waitTime := rc.calculateWaitTime(attempt)
		if time.Since(totalStart)+waitTime > rc.config.MaxTotalWait {
			break
		}

		// Drain the failed response before the next attempt
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			resp = nil
		}

		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d attempt(s): %w", rc.config.MaxAttempts, err)
	}
	return resp, nil
}

// rewind clones the request with a fresh body
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		clone.Body = body
	}
	return clone, nil
}

// calculateWaitTime calculates wait time using exponential backoff
func (rc *RetryClient) calculateWaitTime(attempt int) time.Duration {
	baseWait := time.Duration(math.Pow(2, float64(attempt))) * time.Duration(rc.config.Multiplier) * time.Second
	if baseWait > rc.config.MaxWaitPerAttempt {
		baseWait = rc.config.MaxWaitPerAttempt
	}
	return baseWait
}

// Timeout returns the per-request timeout
func (rc *RetryClient) Timeout() time.Duration {
	return rc.client.Timeout
}
