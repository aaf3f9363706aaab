package config

import (
	"time"
)

// ProviderConfig holds configuration for one LLM vendor adapter
type ProviderConfig struct {
	APIKey       string   `mapstructure:"api_key"`       // Optional, the credential resolver may supply it
	BaseURL      string   `mapstructure:"base_url"`      // Optional, for compatible gateways and tests
	DefaultModel string   `mapstructure:"default_model"` // Used when no model or an unknown model is requested
	Models       []string `mapstructure:"models"`        // Extra advertised models beyond the built-in catalog
	Timeout      int      `mapstructure:"timeout"`       // Request timeout in seconds
	MaxTokens    int      `mapstructure:"max_tokens"`    // Default completion budget
}

// ProvidersConfig holds all vendor adapters
type ProvidersConfig struct {
	Default   string         `mapstructure:"default"` // openai, anthropic, gemini
	OpenAI    ProviderConfig `mapstructure:"openai"`
	Anthropic ProviderConfig `mapstructure:"anthropic"`
	Gemini    ProviderConfig `mapstructure:"gemini"`
}

// RetryConfig holds HTTP retry configuration for transport failures and 5xx responses
type RetryConfig struct {
	MaxAttempts       int `mapstructure:"max_attempts"`         // Default: 1 (no retry)
	Multiplier        int `mapstructure:"multiplier"`           // Default: 1
	MaxWaitPerAttempt int `mapstructure:"max_wait_per_attempt"` // Default: 10 seconds
	MaxTotalWait      int `mapstructure:"max_total_wait"`       // Default: 30 seconds
}

// ChatConfig holds orchestrator settings
type ChatConfig struct {
	MaxIterations       int     `mapstructure:"max_iterations"`
	Temperature         float64 `mapstructure:"temperature"`
	MaxTokens           int     `mapstructure:"max_tokens"`
	ContextTokenBudget  int     `mapstructure:"context_token_budget"`
	MaxToolResultTokens int     `mapstructure:"max_tool_result_tokens"`
	AbortOnToolError    bool    `mapstructure:"abort_on_tool_error"`
	AutoTitle           bool    `mapstructure:"auto_title"`
}

// PrivacyConfig is the data-access policy applied to entity context.
// Emails and phone numbers are never included regardless of these flags.
type PrivacyConfig struct {
	AllowNotes    bool `mapstructure:"allow_notes"`
	AllowTags     bool `mapstructure:"allow_tags"`
	AllowLinkedIn bool `mapstructure:"allow_linkedin"`
}

// SearchConfig holds search backend credentials and limits
type SearchConfig struct {
	BraveAPIKey       string `mapstructure:"brave_api_key"`
	YouTubeAPIKey     string `mapstructure:"youtube_api_key"`
	ListenNotesAPIKey string `mapstructure:"listennotes_api_key"`
	RateLimit         int    `mapstructure:"rate_limit"` // Requests per second per backend, 0 = unlimited
	MaxResults        int    `mapstructure:"max_results"`
	Timeout           int    `mapstructure:"timeout"`    // Seconds
	CacheSize         int    `mapstructure:"cache_size"` // Cached queries per backend, 0 = default
	CacheTTL          int    `mapstructure:"cache_ttl"`  // Seconds a cached result stays valid
}

// StoreConfig selects the conversation store
type StoreConfig struct {
	DSN string `mapstructure:"dsn"` // "memory", a SQLite path, or postgres://
}

// CRMConfig locates the reference CRM data set
type CRMConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	LogDir       string `mapstructure:"log_dir"`
	FileLevel    string `mapstructure:"file_level"`    // debug, info, warn, error
	ConsoleLevel string `mapstructure:"console_level"` // debug, info, warn, error
}

// Config is the full application configuration
type Config struct {
	Debug     bool            `mapstructure:"debug"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Privacy   PrivacyConfig   `mapstructure:"privacy"`
	Search    SearchConfig    `mapstructure:"search"`
	Store     StoreConfig     `mapstructure:"store"`
	CRM       CRMConfig       `mapstructure:"crm"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Provider returns the configuration for a named provider
func (c *ProvidersConfig) Provider(name string) (ProviderConfig, bool) {
	switch name {
	case "openai":
		return c.OpenAI, true
	case "anthropic":
		return c.Anthropic, true
	case "gemini":
		return c.Gemini, true
	}
	return ProviderConfig{}, false
}

// GetTimeout returns the timeout as a time.Duration
func (c *ProviderConfig) GetTimeout() time.Duration {
	if c.Timeout == 0 {
		return 120 * time.Second // Default timeout
	}
	return time.Duration(c.Timeout) * time.Second
}

// GetMaxTokens returns the max tokens with a default
func (c *ProviderConfig) GetMaxTokens() int {
	if c.MaxTokens == 0 {
		return 4096
	}
	return c.MaxTokens
}

// GetMaxIterations returns the tool loop cap with a default
func (c *ChatConfig) GetMaxIterations() int {
	if c.MaxIterations <= 0 {
		return 10
	}
	return c.MaxIterations
}

// GetContextTokenBudget returns the context budget with a default
func (c *ChatConfig) GetContextTokenBudget() int {
	if c.ContextTokenBudget <= 0 {
		return 4000
	}
	return c.ContextTokenBudget
}

// GetMaxToolResultTokens returns the per-result cap with a default
func (c *ChatConfig) GetMaxToolResultTokens() int {
	if c.MaxToolResultTokens <= 0 {
		return 4000
	}
	return c.MaxToolResultTokens
}

// GetTimeout returns the search request timeout
func (c *SearchConfig) GetTimeout() time.Duration {
	if c.Timeout == 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// GetMaxResults returns the default result count
func (c *SearchConfig) GetMaxResults() int {
	if c.MaxResults <= 0 {
		return 5
	}
	return c.MaxResults
}

// GetCacheTTL returns how long search results are reused
func (c *SearchConfig) GetCacheTTL() time.Duration {
	if c.CacheTTL <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.CacheTTL) * time.Second
}
