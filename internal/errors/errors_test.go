package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestProviderErrorVariants(t *testing.T) {
	auth := NewProviderAuthError("anthropic", 401, "invalid x-api-key")
	rate := NewProviderRateLimitError("openai", 30*time.Second, "slow down")
	generic := NewProviderError("gemini", 500, "internal", stderrors.New("boom"))

	if !IsProviderAuth(fmt.Errorf("wrapped: %w", auth)) {
		t.Error("expected wrapped auth error to be detected")
	}
	if IsProviderAuth(rate) || IsProviderAuth(generic) {
		t.Error("only auth errors should be reported as auth")
	}

	retry, ok := IsRateLimited(fmt.Errorf("turn failed: %w", rate))
	if !ok || retry != 30*time.Second {
		t.Errorf("expected rate limit with 30s hint, got %v %v", retry, ok)
	}

	for _, err := range []error{auth, rate, generic} {
		pe, ok := AsProviderError(err)
		if !ok {
			t.Fatalf("expected provider error for %T", err)
		}
		if pe.Provider == "" {
			t.Errorf("provider name missing on %T", err)
		}
	}

	if !stderrors.Is(generic, generic.Cause) {
		t.Error("generic error should unwrap to its cause")
	}
}

func TestExitCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ExitCode
	}{
		{"nil", nil, ExitSuccess},
		{"plain", stderrors.New("x"), ExitGeneralError},
		{"auth", NewProviderAuthError("openai", 401, "bad"), ExitAuthError},
		{"rate", NewProviderRateLimitError("openai", 0, "slow"), ExitRateLimited},
		{"wrapped config", fmt.Errorf("load: %w", NewConfigurationError("bad")), ExitConfigError},
		{"not found", NewConversationNotFoundError("c1"), ExitStoreError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeOf(tt.err); got != tt.want {
				t.Errorf("ExitCodeOf() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetUserMessage_IncludesRetryHint(t *testing.T) {
	err := NewProviderRateLimitError("anthropic", 12*time.Second, "too many requests")
	msg := err.GetUserMessage()

	for _, want := range []string{"rate limited", "retry after 12s", "What you can do"} {
		if !strings.Contains(msg, want) {
			t.Errorf("user message missing %q:\n%s", want, msg)
		}
	}
}

func TestConvertEnvToYAMLKey(t *testing.T) {
	tests := map[string]string{
		"CRMASSIST_PROVIDERS_OPENAI_API_KEY": "providers.openai.api_key",
		"CRMASSIST_STORE_DSN":                "store.dsn",
	}
	for in, want := range tests {
		if got := convertEnvToYAMLKey(in); got != want {
			t.Errorf("convertEnvToYAMLKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfigErrorsCarryConfigExitCode(t *testing.T) {
	missing := NewMissingEnvVarError("CRMASSIST_PROVIDERS_GEMINI_API_KEY", "Gemini API key")
	invalid := NewInvalidEnvVarError("CRMASSIST_CHAT_TEMPERATURE", "3", "Must be between 0 and 2")
	file := NewConfigFileError("/tmp/config.yaml", stderrors.New("yaml: line 2"))

	for _, err := range []error{missing, invalid, file} {
		if got := ExitCodeOf(err); got != ExitConfigError {
			t.Errorf("%T: exit code %s, want config", err, got)
		}
	}

	if msg := missing.GetUserMessage(); !strings.Contains(msg, "providers.gemini.api_key") {
		t.Errorf("expected yaml key suggestion:\n%s", msg)
	}
	if msg := invalid.GetUserMessage(); !strings.Contains(msg, "Must be between 0 and 2") {
		t.Errorf("expected reason in suggestions:\n%s", msg)
	}
	if !stderrors.Is(file, file.Cause) {
		t.Error("config file error should unwrap to the parse error")
	}
}

func TestExitCodeString(t *testing.T) {
	if ExitAuthError.String() != "auth" || ExitStoreError.String() != "store" {
		t.Errorf("unexpected names %s %s", ExitAuthError, ExitStoreError)
	}
	if ExitCode(42).String() != "unknown" {
		t.Error("out of range codes should be unknown")
	}
}

func TestWrapAndUserMessage(t *testing.T) {
	if Wrap(nil, "ignored", ExitStoreError) != nil {
		t.Error("wrapping nil should yield nil")
	}

	err := fmt.Errorf("list: %w", Wrap(stderrors.New("connection refused"), "store unavailable", ExitStoreError))
	if ExitCodeOf(err) != ExitStoreError {
		t.Errorf("expected store exit code, got %s", ExitCodeOf(err))
	}
	msg, ok := UserMessage(err)
	if !ok || !strings.Contains(msg, "Cause: connection refused") {
		t.Errorf("unexpected user message %q", msg)
	}

	if _, ok := UserMessage(stderrors.New("plain")); ok {
		t.Error("plain errors have no user message")
	}
}
