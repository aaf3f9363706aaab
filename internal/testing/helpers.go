package testing

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/user/crmassist/internal/llmtypes"
)

// MockProvider is a scripted provider adapter. It returns Responses in order
// and repeats the last one once they run out.
type MockProvider struct {
	ProviderName string
	Models       []string
	Default      string
	Responses    []*llmtypes.Response
	Err          error
	KeyValid     bool

	mu       sync.Mutex
	requests []llmtypes.ChatRequest
}

// NewMockProvider creates a mock provider with predefined responses
func NewMockProvider(name string, responses ...*llmtypes.Response) *MockProvider {
	return &MockProvider{
		ProviderName: name,
		Models:       []string{"mock-large", "mock-small"},
		Default:      "mock-large",
		Responses:    responses,
		KeyValid:     true,
	}
}

// TextResponse builds a final text response
func TextResponse(text string, inputTokens, outputTokens int) *llmtypes.Response {
	return &llmtypes.Response{
		Content:      text,
		Usage:        llmtypes.NewUsage(inputTokens, outputTokens),
		FinishReason: "stop",
	}
}

// ToolCallResponse builds a response that asks for tools
func ToolCallResponse(text string, calls ...llmtypes.ToolCall) *llmtypes.Response {
	return &llmtypes.Response{
		Content:      text,
		Usage:        llmtypes.NewUsage(10, 2),
		FinishReason: "tool_calls",
		ToolCalls:    calls,
	}
}

func (m *MockProvider) next(req llmtypes.ChatRequest) (*llmtypes.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return nil, fmt.Errorf("no responses configured")
	}

	i := min(len(m.requests)-1, len(m.Responses)-1)
	resp := *m.Responses[i]
	if resp.Model == "" {
		resp.Model = m.ResolveModel(req.Model)
	}
	return &resp, nil
}

func (m *MockProvider) Name() string {
	return m.ProviderName
}

func (m *MockProvider) Chat(ctx context.Context, req llmtypes.ChatRequest) (*llmtypes.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.next(req)
}

// Stream yields the scripted content word by word, then one final chunk
func (m *MockProvider) Stream(ctx context.Context, req llmtypes.ChatRequest) iter.Seq2[llmtypes.StreamChunk, error] {
	return func(yield func(llmtypes.StreamChunk, error) bool) {
		resp, err := m.Chat(ctx, req)
		if err != nil {
			yield(llmtypes.StreamChunk{}, err)
			return
		}
		for _, word := range strings.SplitAfter(resp.Content, " ") {
			if word == "" {
				continue
			}
			if !yield(llmtypes.StreamChunk{Content: word}, nil) {
				return
			}
		}
		yield(llmtypes.StreamChunk{
			IsFinal:      true,
			Usage:        resp.Usage,
			FinishReason: resp.FinishReason,
			ToolCalls:    resp.ToolCalls,
		}, nil)
	}
}

func (m *MockProvider) CountTokens(text, _ string) int {
	return (len(text) + 3) / 4
}

func (m *MockProvider) ValidateKey(context.Context) bool {
	return m.KeyValid
}

func (m *MockProvider) ResolveModel(model string) string {
	if model == "" {
		return m.Default
	}
	return model
}

func (m *MockProvider) AvailableModels() []string {
	return slices.Clone(m.Models)
}

func (m *MockProvider) DefaultModel() string {
	return m.Default
}

// Requests returns a copy of every request received
func (m *MockProvider) Requests() []llmtypes.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

// CallCount returns the number of provider calls made
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// StaticCredentials resolves every provider to the same secret
type StaticCredentials string

func (s StaticCredentials) ActiveCredential(_ context.Context, _ string) (string, bool, error) {
	return string(s), s != "", nil
}

// WriteFile writes content under dir, creating parent directories
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// AssertContains fails the test when s does not contain want
func AssertContains(t *testing.T, s, want string) {
	t.Helper()
	if !strings.Contains(s, want) {
		t.Errorf("Expected %q to contain %q", s, want)
	}
}

// AssertNotContains fails the test when s contains unwanted
func AssertNotContains(t *testing.T, s, unwanted string) {
	t.Helper()
	if strings.Contains(s, unwanted) {
		t.Errorf("Expected %q not to contain %q", s, unwanted)
	}
}
