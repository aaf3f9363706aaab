package tools

import (
	"slices"
	"sync"

	"github.com/user/crmassist/internal/errors"
	"github.com/user/crmassist/internal/llm"
	"github.com/user/crmassist/internal/llmtypes"
)

// Registry holds tools keyed by name in registration order.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique within the registry.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return errors.NewError("tool name is required", errors.ExitGeneralError)
	}
	if tool.Handler == nil {
		return errors.NewError("tool "+tool.Name+" has no handler", errors.ExitGeneralError)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return errors.NewDuplicateToolError(tool.Name)
	}
	tool.Parameters = slices.Clone(tool.Parameters)
	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// RegisterAll registers tools in order, stopping at the first error
func (r *Registry) RegisterAll(tools ...Tool) error {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Get looks a tool up by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns registered tools in order, optionally limited to categories
func (r *Registry) Tools(categories ...Category) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		if len(categories) > 0 && !slices.Contains(categories, t.Category) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Definitions returns the vendor-neutral declarations
func (r *Registry) Definitions(categories ...Category) []llmtypes.ToolDefinition {
	tools := r.Tools(categories...)
	defs := make([]llmtypes.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// OpenAITools renders the tools in the OpenAI function-calling dialect
func (r *Registry) OpenAITools(categories ...Category) []map[string]any {
	return llm.ToOpenAITools(r.Definitions(categories...))
}

// AnthropicTools renders the tools in the Anthropic dialect
func (r *Registry) AnthropicTools(categories ...Category) []map[string]any {
	return llm.ToAnthropicTools(r.Definitions(categories...))
}

// GeminiTools renders the tools in the Gemini dialect
func (r *Registry) GeminiTools(categories ...Category) []map[string]any {
	return llm.ToGeminiTools(r.Definitions(categories...))
}

// ToolsFor renders the tools in the dialect of the named provider
func (r *Registry) ToolsFor(provider string, categories ...Category) []map[string]any {
	switch provider {
	case llm.ProviderAnthropic:
		return r.AnthropicTools(categories...)
	case llm.ProviderGemini:
		return r.GeminiTools(categories...)
	default:
		return r.OpenAITools(categories...)
	}
}
