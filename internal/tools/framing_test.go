package tools

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/user/crmassist/internal/llm"
	"github.com/user/crmassist/internal/llmtypes"
	"github.com/user/crmassist/internal/privacy"
)

func sampleBatch() ExecutionResult {
	return ExecutionResult{Executions: []Execution{
		{
			Call:   llmtypes.ToolCall{ID: "t1", Name: "lookup_person"},
			Result: Success(map[string]any{"name": "Ada", "note": "reach her at ada@acme.example"}),
		},
		{
			Call:   llmtypes.ToolCall{ID: "t2", Name: "web_search"},
			Result: Failure("brave returned status 500"),
		},
	}}
}

func TestFrameResults_PerVendor(t *testing.T) {
	f := NewFramer(0)

	t.Run("openai", func(t *testing.T) {
		msgs := f.FrameResults(llm.ProviderOpenAI, sampleBatch())
		if len(msgs) != 2 {
			t.Fatalf("expected one tool message per call, got %d", len(msgs))
		}
		for i, id := range []string{"t1", "t2"} {
			if msgs[i].Role != llmtypes.RoleTool || msgs[i].ToolCallID != id {
				t.Errorf("message %d: unexpected %+v", i, msgs[i])
			}
		}
		if msgs[1].Content.String() != "Error: brave returned status 500" {
			t.Errorf("unexpected error content %q", msgs[1].Content.String())
		}
	})

	t.Run("anthropic", func(t *testing.T) {
		msgs := f.FrameResults(llm.ProviderAnthropic, sampleBatch())
		if len(msgs) != 1 || msgs[0].Role != llmtypes.RoleUser {
			t.Fatalf("expected a single user message, got %+v", msgs)
		}
		results := msgs[0].ToolResults()
		if len(results) != 2 || results[0].IsError || !results[1].IsError {
			t.Errorf("expected is_error only on the failed call, got %+v", results)
		}
	})

	t.Run("gemini", func(t *testing.T) {
		msgs := f.FrameResults(llm.ProviderGemini, sampleBatch())
		if len(msgs) != 1 || msgs[0].Role != llmtypes.RoleTool {
			t.Fatalf("expected a single tool message, got %+v", msgs)
		}
		results := msgs[0].ToolResults()
		if len(results) != 2 || results[0].Name != "lookup_person" {
			t.Errorf("function responses need names, got %+v", results)
		}
	})
}

func TestFramer_ContentIsFilteredAndCapped(t *testing.T) {
	f := NewFramer(0)
	content := f.Content(sampleBatch().Executions[0].Result)
	if strings.Contains(content, "ada@acme.example") {
		t.Errorf("email leaked into tool result: %s", content)
	}
	if !strings.Contains(content, privacy.EmailPlaceholder) {
		t.Errorf("expected placeholder in %s", content)
	}

	capped := NewFramer(5).Content(Success(strings.Repeat("x", 100)))
	if !strings.HasSuffix(capped, truncatedMarker) || len(capped) != 20+len(truncatedMarker) {
		t.Errorf("expected 20 chars plus marker, got %d", len(capped))
	}

	partial := f.Content(Partial("some text", "page text truncated"))
	if !strings.Contains(partial, "Warning: page text truncated") {
		t.Errorf("partial results should carry their warning, got %q", partial)
	}
}

func TestFramer_CapKeepsRunesWhole(t *testing.T) {
	capped := NewFramer(1).Content(Success("a" + strings.Repeat("é", 10)))
	if !utf8.ValidString(capped) {
		t.Fatalf("capped result is not valid UTF-8: %q", capped)
	}
	if capped != "aé"+truncatedMarker {
		t.Errorf("unexpected capped result %q", capped)
	}
}

func TestFrameAssistantTurn(t *testing.T) {
	f := NewFramer(0)
	calls := []llmtypes.ToolCall{{ID: "t1", Name: "lookup_person"}}

	msg := f.FrameAssistantTurn("Let me check.", calls)
	if msg.Role != llmtypes.RoleAssistant || msg.Content.String() != "Let me check." {
		t.Errorf("unexpected message %+v", msg)
	}
	if got := msg.ToolCalls(); len(got) != 1 || got[0].ID != "t1" {
		t.Errorf("tool calls not captured: %+v", got)
	}

	noText := f.FrameAssistantTurn("", calls)
	if len(noText.Content.BlockList()) != 1 {
		t.Error("empty text should not produce a text block")
	}
}
