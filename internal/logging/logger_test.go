package logging

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelFromString(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"unknown": zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := LevelFromString(in); got != want {
			t.Errorf("LevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(ConfigFromLevels(dir, "info", "error", false))
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("conversation started", String("conversation_id", "c1"))
	_ = logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "crmassist.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to contain the entry")
	}
}

func TestWithAndNamed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore(core).Named("chat").With(String("provider", "openai"))

	logger.Warn("model fallback", String("requested", "gpt-9"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "chat" {
		t.Errorf("expected logger name chat, got %q", entries[0].LoggerName)
	}
	if entries[0].ContextMap()["provider"] != "openai" {
		t.Errorf("expected provider field, got %v", entries[0].ContextMap())
	}
}

func TestSecretFieldsAreMasked(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore(core).With(String("api_key", "sk-live-123"))

	logger.Info("provider configured",
		String("Authorization", "Bearer sk-live-123"),
		String("provider", "openai"),
		String("token", ""),
	)

	fields := logs.All()[0].ContextMap()
	if fields["api_key"] != "[REDACTED]" || fields["Authorization"] != "[REDACTED]" {
		t.Errorf("credentials leaked: %v", fields)
	}
	if fields["provider"] != "openai" {
		t.Errorf("ordinary field altered: %v", fields)
	}
	if fields["token"] != "" {
		t.Errorf("empty secret should stay empty, got %v", fields["token"])
	}
}

func TestForConversation(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewWithCore(core).ForConversation("c-42").Info("turn complete")

	if got := logs.FilterField(String("conversation_id", "c-42")).Len(); got != 1 {
		t.Errorf("expected one tagged entry, got %d", got)
	}
}
