package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/user/crmassist/internal/errors"
)

// EnvPrefix is the prefix for all crmassist environment variables
const EnvPrefix = "CRMASSIST"

// defaults are the lowest-precedence values for every known key
var defaults = map[string]any{
	"debug":                       false,
	"providers.default":           "openai",
	"providers.openai.timeout":    120,
	"providers.anthropic.timeout": 120,
	"providers.gemini.timeout":    120,
	"retry.max_attempts":          1,
	"retry.multiplier":            1,
	"retry.max_wait_per_attempt":  10,
	"retry.max_total_wait":        30,
	"chat.max_iterations":         10,
	"chat.temperature":            0.7,
	"chat.max_tokens":             4096,
	"chat.context_token_budget":   4000,
	"chat.max_tool_result_tokens": 4000,
	"chat.abort_on_tool_error":    false,
	"chat.auto_title":             true,
	"privacy.allow_notes":         true,
	"privacy.allow_tags":          true,
	"privacy.allow_linkedin":      true,
	"search.rate_limit":           1,
	"search.max_results":          5,
	"search.timeout":              10,
	"search.cache_size":           256,
	"search.cache_ttl":            900,
	"store.dsn":                   "memory",
	"crm.seed_file":               "",
	"logging.log_dir":             ".crmassist/logs",
	"logging.file_level":          "info",
	"logging.console_level":       "error",
}

// envOnlyKeys are keys without a default that can still be set from the environment
var envOnlyKeys = []string{
	"providers.openai.api_key",
	"providers.openai.base_url",
	"providers.openai.default_model",
	"providers.anthropic.api_key",
	"providers.anthropic.base_url",
	"providers.anthropic.default_model",
	"providers.gemini.api_key",
	"providers.gemini.base_url",
	"providers.gemini.default_model",
	"search.brave_api_key",
	"search.youtube_api_key",
	"search.listennotes_api_key",
}

// vendorEnvFallbacks maps keys to the conventional vendor variable consulted
// when the prefixed variable is not set
var vendorEnvFallbacks = map[string]string{
	"providers.openai.api_key":    "OPENAI_API_KEY",
	"providers.anthropic.api_key": "ANTHROPIC_API_KEY",
	"providers.gemini.api_key":    "GEMINI_API_KEY",
	"search.brave_api_key":        "BRAVE_API_KEY",
	"search.youtube_api_key":      "YOUTUBE_API_KEY",
	"search.listennotes_api_key":  "LISTENNOTES_API_KEY",
}

// Loader handles loading configuration from multiple sources
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	return &Loader{v: v}
}

// Load loads configuration from every source.
// Precedence: CLI > .crmassist/config.yaml > ~/.crmassist.yaml > Environment > Defaults
func (l *Loader) Load(workDir string, cliOverrides map[string]any) (*viper.Viper, error) {
	// 1. Defaults, then environment layered over them at the same low level
	l.applyDefaults()
	l.applyEnv()

	// 2. Load from ~/.crmassist.yaml (global user config)
	if err := l.loadGlobalConfig(); err != nil {
		return nil, err
	}

	// 3. Load from .crmassist/config.yaml (project-specific config)
	if err := l.loadProjectConfig(workDir); err != nil {
		return nil, err
	}

	// 4. Apply CLI overrides
	l.applyCLIOverrides(cliOverrides)

	return l.v, nil
}

func (l *Loader) applyDefaults() {
	for key, value := range defaults {
		l.v.SetDefault(key, value)
	}
}

// applyEnv records environment values as defaults so config files still win
func (l *Loader) applyEnv() {
	keys := make([]string, 0, len(defaults)+len(envOnlyKeys))
	for key := range defaults {
		keys = append(keys, key)
	}
	keys = append(keys, envOnlyKeys...)

	for _, key := range keys {
		if val := getEnvWithFallback(EnvVarName(key), vendorEnvFallbacks[key], ""); val != "" {
			l.v.SetDefault(key, val)
		}
	}
}

// loadGlobalConfig loads configuration from ~/.crmassist.yaml
func (l *Loader) loadGlobalConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil // Not a fatal error
	}

	globalConfig := filepath.Join(homeDir, ".crmassist.yaml")
	if _, err := os.Stat(globalConfig); err != nil {
		return nil // File doesn't exist, skip
	}

	l.v.SetConfigFile(globalConfig)
	if err := l.v.MergeInConfig(); err != nil {
		return errors.NewConfigFileError(globalConfig, err)
	}

	return nil
}

// loadProjectConfig loads configuration from .crmassist/config.yaml
func (l *Loader) loadProjectConfig(workDir string) error {
	if workDir == "" {
		workDir = "."
	}

	configPath := filepath.Join(workDir, ".crmassist", "config.yaml")
	if _, err := os.Stat(configPath); err != nil {
		return nil // File doesn't exist, skip
	}

	l.v.SetConfigFile(configPath)
	if err := l.v.MergeInConfig(); err != nil {
		return errors.NewConfigFileError(configPath, err)
	}

	return nil
}

// applyCLIOverrides applies CLI flag overrides
func (l *Loader) applyCLIOverrides(overrides map[string]any) {
	for key, value := range overrides {
		// Only set if value is not nil
		if value != nil {
			l.v.Set(key, value)
		}
	}
}

// Load reads, decodes and validates the full configuration
func Load(workDir string, cliOverrides map[string]any) (*Config, error) {
	v, err := NewLoader().Load(workDir, cliOverrides)
	if err != nil {
		return nil, err
	}

	cfg, err := Decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Decode converts a nested settings map into a Config
func Decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoderConfig := &mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           cfg,
		TagName:          "mapstructure",
		Squash:           true,
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create config decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, errors.NewConfigurationError(fmt.Sprintf("failed to decode configuration: %v", err))
	}

	return cfg, nil
}

// Validate checks value ranges. Missing API keys are not an error here because
// credentials may come from the resolver at request time.
func Validate(cfg *Config) error {
	if _, ok := cfg.Providers.Provider(cfg.Providers.Default); !ok {
		return errors.NewInvalidEnvVarError(EnvVarName("providers.default"), cfg.Providers.Default, "Must be one of: openai, anthropic, gemini")
	}

	if cfg.Chat.Temperature < 0 || cfg.Chat.Temperature > 2 {
		return errors.NewInvalidEnvVarError(EnvVarName("chat.temperature"), fmt.Sprintf("%g", cfg.Chat.Temperature), "Must be between 0 and 2")
	}

	if cfg.Chat.MaxIterations < 0 {
		return errors.NewInvalidEnvVarError(EnvVarName("chat.max_iterations"), fmt.Sprintf("%d", cfg.Chat.MaxIterations), "Must not be negative")
	}

	if cfg.Search.RateLimit < 0 {
		return errors.NewInvalidEnvVarError(EnvVarName("search.rate_limit"), fmt.Sprintf("%d", cfg.Search.RateLimit), "Must not be negative")
	}

	if strings.TrimSpace(cfg.Store.DSN) == "" {
		return errors.NewConfigurationError("store.dsn must not be empty")
	}

	return nil
}

// EnvVarName returns the prefixed environment variable for a dotted key
func EnvVarName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// GetEnvVar gets an environment variable, returning an error if not set
func GetEnvVar(name, description string) (string, error) {
	value := os.Getenv(name)
	if value == "" {
		return "", errors.NewMissingEnvVarError(name, description)
	}
	return value, nil
}

// GetEnvVarOrDefault gets an environment variable with a default value
func GetEnvVarOrDefault(name, defaultValue string) string {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvWithFallback(primaryKey, fallbackKey, defaultValue string) string {
	if val := os.Getenv(primaryKey); val != "" {
		return val
	}
	if fallbackKey != "" {
		if val := os.Getenv(fallbackKey); val != "" {
			return val
		}
	}
	return defaultValue
}
