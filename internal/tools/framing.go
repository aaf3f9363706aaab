package tools

import (
	"encoding/json"
	"fmt"

	"github.com/user/crmassist/internal/llm"
	"github.com/user/crmassist/internal/llmtypes"
	"github.com/user/crmassist/internal/privacy"
)

const truncatedMarker = "\n[TRUNCATED]"

// Framer converts tool activity into conversation messages in the shape each
// vendor expects. Result content is privacy-filtered and size-capped.
type Framer struct {
	filter   *privacy.Filter
	maxChars int
}

// NewFramer caps each result at roughly maxResultTokens tokens; zero disables the cap
func NewFramer(maxResultTokens int) *Framer {
	return &Framer{filter: privacy.New(), maxChars: maxResultTokens * 4}
}

// FrameAssistantTurn captures the model's text and tool calls as one assistant message
func (f *Framer) FrameAssistantTurn(text string, calls []llmtypes.ToolCall) llmtypes.Message {
	blocks := make([]llmtypes.ContentBlock, 0, len(calls)+1)
	if text != "" {
		blocks = append(blocks, llmtypes.TextBlock{Text: text})
	}
	for _, call := range calls {
		blocks = append(blocks, llmtypes.ToolUseBlock{Call: call})
	}
	return llmtypes.Message{Role: llmtypes.RoleAssistant, Content: llmtypes.Blocks(blocks...)}
}

// FrameResults renders a batch of executions for provider:
// OpenAI gets one tool message per call, Anthropic one user message of
// tool_result blocks, Gemini one tool message of function responses.
func (f *Framer) FrameResults(provider string, result ExecutionResult) []llmtypes.Message {
	if len(result.Executions) == 0 {
		return nil
	}

	blocks := make([]llmtypes.ContentBlock, 0, len(result.Executions))
	for _, exec := range result.Executions {
		blocks = append(blocks, llmtypes.ToolResultBlock{
			ToolCallID: exec.Call.ID,
			Name:       exec.Call.Name,
			Content:    f.Content(exec.Result),
			IsError:    exec.Result.Failed(),
		})
	}

	switch provider {
	case llm.ProviderAnthropic:
		return []llmtypes.Message{{Role: llmtypes.RoleUser, Content: llmtypes.Blocks(blocks...)}}
	case llm.ProviderGemini:
		return []llmtypes.Message{{Role: llmtypes.RoleTool, Content: llmtypes.Blocks(blocks...)}}
	default:
		msgs := make([]llmtypes.Message, 0, len(blocks))
		for _, b := range blocks {
			tr := b.(llmtypes.ToolResultBlock)
			msgs = append(msgs, llmtypes.Message{
				Role:       llmtypes.RoleTool,
				Name:       tr.Name,
				ToolCallID: tr.ToolCallID,
				Content:    llmtypes.Text(tr.Content),
			})
		}
		return msgs
	}
}

// Content renders one result as the text the model will read
func (f *Framer) Content(r Result) string {
	var text string
	switch r.Status {
	case StatusError:
		text = "Error: " + r.Error
	case StatusPartial:
		text = renderOutput(r.Output) + "\nWarning: " + r.Error
	default:
		text = renderOutput(r.Output)
	}

	text = f.filter.Redact(text)
	if f.maxChars > 0 && len(text) > f.maxChars {
		text = llmtypes.ClipBytes(text, f.maxChars) + truncatedMarker
	}
	return text
}

func renderOutput(output any) string {
	switch v := output.(type) {
	case nil:
		return "null"
	case string:
		return v
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(data)
}
