package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/user/crmassist/internal/errors"
	"github.com/user/crmassist/internal/llmtypes"
)

// vendorErrorBody covers the error envelope of all three vendors:
// OpenAI {"error":{"message","type","code"}}, Anthropic {"type":"error","error":{"type","message"}},
// Gemini {"error":{"code","message","status"}}
type vendorErrorBody struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Status  string `json:"status"`
	} `json:"error"`
}

// translateHTTPError maps a non-200 vendor response onto the provider error taxonomy
func translateHTTPError(provider string, resp *http.Response, body []byte) error {
	msg := vendorErrorMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return errors.NewProviderAuthError(provider, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.NewProviderRateLimitError(provider, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()), msg)
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(msg, "API key not valid"):
		// Gemini reports bad keys as 400 INVALID_ARGUMENT
		return errors.NewProviderAuthError(provider, resp.StatusCode, msg)
	default:
		return errors.NewProviderError(provider, resp.StatusCode, msg, nil)
	}
}

func vendorErrorMessage(body []byte) string {
	var eb vendorErrorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == nil {
		return strings.TrimSpace(truncate(string(body), 300))
	}
	return eb.Error.Message
}

// maxRetryAfter caps vendor backoff hints
const maxRetryAfter = time.Hour

// parseRetryAfter reads a Retry-After header given either as seconds or as an HTTP date.
// Returns zero when absent, unparseable or not finite; larger hints are capped.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
			return 0
		}
		return time.Duration(min(secs, maxRetryAfter.Seconds()) * float64(time.Second))
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return min(d.Round(time.Second), maxRetryAfter)
		}
	}
	return 0
}

// transportError wraps a failure that happened before any response was read
func transportError(provider string, err error) error {
	return errors.NewProviderError(provider, 0, "request failed", err)
}

// decodeError wraps a response that could not be understood
func decodeError(provider string, err error) error {
	return errors.NewProviderError(provider, http.StatusOK, "failed to parse response", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return llmtypes.ClipBytes(s, n) + "..."
}
