package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ProviderError is the generic failure of an LLM provider call: transport,
// decoding, or an unexpected vendor response.
type ProviderError struct {
	*AppError
	Provider   string
	StatusCode int // 0 when no HTTP response was received
}

// NewProviderError creates a new generic provider error
func NewProviderError(provider string, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		AppError: &AppError{
			Message: fmt.Sprintf("%s: %s", provider, message),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "LLM API Call",
				Component: provider,
				Details: map[string]interface{}{
					"provider":    provider,
					"status_code": statusCode,
				},
				Suggestions: []string{
					"Check your internet connection",
					"Verify the provider base URL is reachable",
					"Try again later (service may be unavailable)",
				},
				Recoverable: true,
			},
			ExitCode: ExitProviderError,
		},
		Provider:   provider,
		StatusCode: statusCode,
	}
}

// ProviderAuthError is raised when the provider rejects the credential
type ProviderAuthError struct {
	*ProviderError
}

// NewProviderAuthError creates a new authentication error
func NewProviderAuthError(provider string, statusCode int, message string) *ProviderAuthError {
	pe := NewProviderError(provider, statusCode, "authentication failed: "+message, nil)
	pe.ExitCode = ExitAuthError
	pe.Context.Recoverable = false
	pe.Context.Suggestions = []string{
		fmt.Sprintf("Verify the %s API key is set and active", provider),
		"Run 'crmassist check' to validate all configured keys",
	}
	return &ProviderAuthError{ProviderError: pe}
}

// ProviderRateLimitError is raised when the provider throttles the caller.
// RetryAfter is zero when the vendor gave no hint.
type ProviderRateLimitError struct {
	*ProviderError
	RetryAfter time.Duration
}

// NewProviderRateLimitError creates a new rate limit error
func NewProviderRateLimitError(provider string, retryAfter time.Duration, message string) *ProviderRateLimitError {
	pe := NewProviderError(provider, 429, "rate limited: "+message, nil)
	pe.ExitCode = ExitRateLimited
	pe.Context.RetryAfter = retryAfter
	pe.Context.Suggestions = []string{
		"Wait before sending the next message",
		"Check the usage limits of your API plan",
	}
	return &ProviderRateLimitError{ProviderError: pe, RetryAfter: retryAfter}
}

// IsProviderAuth reports whether err is an authentication failure
func IsProviderAuth(err error) bool {
	var target *ProviderAuthError
	return stderrors.As(err, &target)
}

// IsRateLimited reports whether err is a rate limit and returns the retry hint
func IsRateLimited(err error) (time.Duration, bool) {
	var target *ProviderRateLimitError
	if stderrors.As(err, &target) {
		return target.RetryAfter, true
	}
	return 0, false
}

// AsProviderError extracts the generic provider error from any of the three variants
func AsProviderError(err error) (*ProviderError, bool) {
	var auth *ProviderAuthError
	if stderrors.As(err, &auth) {
		return auth.ProviderError, true
	}
	var rate *ProviderRateLimitError
	if stderrors.As(err, &rate) {
		return rate.ProviderError, true
	}
	var pe *ProviderError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
