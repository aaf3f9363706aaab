package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/user/crmassist/internal/config"
	appErrors "github.com/user/crmassist/internal/errors"
)

// TestInitLogger_RelativeLogDir tests that relative log directories resolve against the work dir
func TestInitLogger_RelativeLogDir(t *testing.T) {
	workDir := t.TempDir()

	logger, err := InitLogger(workDir, config.LoggingConfig{LogDir: filepath.Join(".crmassist", "logs")}, false, false)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer logger.Sync()

	logDir := filepath.Join(workDir, ".crmassist", "logs")
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Errorf("Expected %s directory to be created", logDir)
	}
}

// TestInitLogger_AbsoluteLogDir tests that absolute log directories are used as given
func TestInitLogger_AbsoluteLogDir(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	logger, err := InitLogger("/somewhere/else", config.LoggingConfig{LogDir: logDir, FileLevel: "debug"}, true, true)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer logger.Sync()

	logger.Info("check")
	_ = logger.Sync()

	if _, err := os.Stat(filepath.Join(logDir, "crmassist.log")); err != nil {
		t.Errorf("Expected log file in %s: %v", logDir, err)
	}
}

// TestCLIOverrides_DropsUnsetValues tests that empty flags do not mask config
func TestCLIOverrides_DropsUnsetValues(t *testing.T) {
	got := cliOverrides(map[string]any{
		"providers.default":   "",
		"chat.max_iterations": 5,
		"store.dsn":           nil,
	})

	if _, ok := got["providers.default"]; ok {
		t.Error("Expected empty string override to be dropped")
	}
	if _, ok := got["store.dsn"]; ok {
		t.Error("Expected nil override to be dropped")
	}
	if got["chat.max_iterations"] != 5 {
		t.Errorf("Expected max_iterations override, got %v", got["chat.max_iterations"])
	}
	if _, ok := got["debug"]; !ok {
		t.Error("Expected debug flag to always be passed")
	}
}

// TestHandleCommandError_NilError tests that nil errors pass through
func TestHandleCommandError_NilError(t *testing.T) {
	if err := HandleCommandError(nil); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}

// TestHandleCommandError_KeepsExitCode tests that application errors keep their exit code
func TestHandleCommandError_KeepsExitCode(t *testing.T) {
	appErr := appErrors.NewError("store unavailable", appErrors.ExitStoreError)

	err := HandleCommandError(appErr)
	if err != appErr {
		t.Errorf("Expected the same error back, got %v", err)
	}
	if code := appErrors.ExitCodeOf(err); code != appErrors.ExitStoreError {
		t.Errorf("Expected exit code %d, got %d", appErrors.ExitStoreError, code)
	}
}

// TestRootCommand_Subcommands tests that every command is registered
func TestRootCommand_Subcommands(t *testing.T) {
	for _, name := range []string{"chat", "check", "conversations", "stats"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Expected %s command to be registered, got %v", name, err)
		}
	}
}
