package llm

import (
	"context"
	"iter"
	"time"

	"github.com/user/crmassist/internal/llmtypes"
)

// Type aliases so callers of this package rarely need llmtypes directly
type (
	Message        = llmtypes.Message
	ToolCall       = llmtypes.ToolCall
	Response       = llmtypes.Response
	StreamChunk    = llmtypes.StreamChunk
	Usage          = llmtypes.Usage
	ToolDefinition = llmtypes.ToolDefinition
	ChatRequest    = llmtypes.ChatRequest
)

// Provider names
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Provider is the capability contract every vendor adapter implements.
// Vendor wire types never escape an implementation.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Chat sends one turn and returns the normalized response
	Chat(ctx context.Context, req ChatRequest) (*Response, error)

	// Stream sends one turn and yields incremental chunks. Exactly one chunk
	// has IsFinal set and it is always the last one yielded without error.
	Stream(ctx context.Context, req ChatRequest) iter.Seq2[StreamChunk, error]

	// CountTokens estimates the token count of text for model
	CountTokens(text, model string) int

	// ValidateKey issues the cheapest real request to check the credential.
	// It never returns an error.
	ValidateKey(ctx context.Context) bool

	// ResolveModel maps aliases to concrete model ids; empty resolves to the default
	ResolveModel(model string) string

	// AvailableModels lists the models the adapter advertises
	AvailableModels() []string

	// DefaultModel returns the configured default model
	DefaultModel() string
}

// Options configures one adapter instance
type Options struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Models       []string // advertised in addition to the built-in catalog
	Timeout      time.Duration
	MaxTokens    int
	Retry        *RetryConfig
}

// Constructor builds an adapter from options
type Constructor func(opts Options) Provider

// Constructors returns the built-in adapter constructors keyed by provider name
func Constructors() map[string]Constructor {
	return map[string]Constructor{
		ProviderOpenAI:    func(opts Options) Provider { return NewOpenAIClient(opts) },
		ProviderAnthropic: func(opts Options) Provider { return NewAnthropicClient(opts) },
		ProviderGemini:    func(opts Options) Provider { return NewGeminiClient(opts) },
	}
}
