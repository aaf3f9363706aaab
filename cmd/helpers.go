package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/crmassist/internal/app"
	"github.com/user/crmassist/internal/config"
	"github.com/user/crmassist/internal/errors"
	"github.com/user/crmassist/internal/logging"
)

// CommandContext holds the resources shared by CLI commands.
// Close releases the store and flushes the logger.
type CommandContext struct {
	Config    *config.Config
	Logger    *logging.Logger
	Container *app.Container
}

func (c *CommandContext) Close() {
	if c.Container != nil {
		if err := c.Container.Close(); err != nil {
			c.Logger.Warn("Failed to close store", logging.Error(err))
		}
	}
	_ = c.Logger.Sync()
}

// InitLogger creates the logger described by the logging section.
// A relative log directory is resolved against workDir; verbose mirrors
// entries to the console.
func InitLogger(workDir string, cfg config.LoggingConfig, debug, verbose bool) (*logging.Logger, error) {
	logDir := cfg.LogDir
	if logDir == "" {
		logDir = filepath.Join(".crmassist", "logs")
	}
	if !filepath.IsAbs(logDir) && workDir != "" && workDir != "." {
		logDir = filepath.Join(workDir, logDir)
	}

	fileLevel := cfg.FileLevel
	if fileLevel == "" {
		fileLevel = "info"
	}
	consoleLevel := cfg.ConsoleLevel
	if consoleLevel == "" || debug {
		consoleLevel = "debug"
	}

	logCfg := logging.ConfigFromLevels(logDir, fileLevel, consoleLevel, verbose)
	logCfg.EnableCaller = debug

	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// cliOverrides drops unset flag values so they do not mask file or env config
func cliOverrides(values map[string]any) map[string]any {
	out := map[string]any{"debug": debugFlag}
	for key, value := range values {
		switch v := value.(type) {
		case string:
			if v == "" {
				continue
			}
		case nil:
			continue
		}
		out[key] = value
	}
	return out
}

// setup loads configuration, creates the logger and wires the container
func setup(overrides map[string]any) (*CommandContext, error) {
	cfg, err := config.Load(workDirFlag, cliOverrides(overrides))
	if err != nil {
		return nil, err
	}

	logger, err := InitLogger(workDirFlag, cfg.Logging, debugFlag, verboseFlag)
	if err != nil {
		return nil, err
	}

	container, err := app.New(cfg, logger, app.WithWorkDir(workDirFlag))
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &CommandContext{Config: cfg, Logger: logger, Container: container}, nil
}

// HandleCommandError prints the user-facing message of application errors
// and returns err unchanged so the exit code survives.
func HandleCommandError(err error) error {
	if err == nil {
		return nil
	}
	if msg, ok := errors.UserMessage(err); ok {
		fmt.Fprintln(os.Stderr, msg)
	}
	return err
}
