package llm

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"strings"

	"github.com/user/crmassist/internal/errors"
	"github.com/user/crmassist/internal/llmtypes"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient implements Provider for the Anthropic Messages API
type AnthropicClient struct {
	*BaseLLMClient
}

// anthropicRequest represents the request body for the Messages API
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Tools       []map[string]any   `json:"tools,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

// anthropicMessage represents a message in Anthropic format
type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

// anthropicContentBlock is a flat union of text, tool_use and tool_result blocks
type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// tool_use
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`
	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// anthropicResponse represents the response from the Messages API
type anthropicResponse struct {
	ID         string                  `json:"id"`
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
	Error      *anthropicError         `json:"error,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// anthropicStreamEvent covers every event type of the Messages stream
type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message *struct {
		Model string         `json:"model"`
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	ContentBlock *anthropicContentBlock `json:"content_block"`
	Delta        *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage *anthropicUsage `json:"usage"`
	Error *anthropicError `json:"error"`
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(opts Options) *AnthropicClient {
	return &AnthropicClient{
		BaseLLMClient: newBaseLLMClient(ProviderAnthropic, "https://api.anthropic.com", opts, anthropicCatalog),
	}
}

func (c *AnthropicClient) headers() map[string]string {
	return map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

// Chat sends one non-streaming turn
func (c *AnthropicClient) Chat(ctx context.Context, req ChatRequest) (*Response, error) {
	anReq := c.convertRequest(req)

	var anResp anthropicResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v1/messages", c.headers(), anReq, &anResp); err != nil {
		return nil, err
	}
	if anResp.Error != nil {
		return nil, anthropicStreamError(anResp.Error)
	}

	resp := convertAnthropicResponse(anResp)
	if resp.Model == "" {
		resp.Model = anReq.Model
	}
	return resp, nil
}

// Stream sends one streaming turn
func (c *AnthropicClient) Stream(ctx context.Context, req ChatRequest) iter.Seq2[StreamChunk, error] {
	anReq := c.convertRequest(req)
	anReq.Stream = true

	return c.stream(ctx, c.baseURL+"/v1/messages", c.headers(), anReq, newAnthropicAccumulator(anReq.Model))
}

// ValidateKey lists a single model
func (c *AnthropicClient) ValidateKey(ctx context.Context) bool {
	return c.probe(ctx, c.baseURL+"/v1/models?limit=1", c.headers())
}

// convertRequest lifts system text into the sibling system parameter
func (c *AnthropicClient) convertRequest(req ChatRequest) anthropicRequest {
	var system []string
	var messages []anthropicMessage

	for _, msg := range req.Messages {
		if msg.Role == llmtypes.RoleSystem {
			if text := msg.Content.String(); text != "" {
				system = append(system, text)
			}
			continue
		}

		role := "user"
		if msg.Role == llmtypes.RoleAssistant {
			role = "assistant"
		}
		blocks := anthropicBlocks(msg)
		if len(blocks) == 0 {
			continue
		}

		// The API requires alternating roles, so consecutive turns are merged
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			continue
		}
		messages = append(messages, anthropicMessage{Role: role, Content: blocks})
	}

	anReq := anthropicRequest{
		Model:       c.ResolveModel(req.Model),
		Messages:    messages,
		System:      strings.Join(system, "\n\n"),
		MaxTokens:   c.maxTokensFor(req),
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		anReq.Tools = ToAnthropicTools(req.Tools)
	}
	return anReq
}

// anthropicBlocks converts one message into content blocks
func anthropicBlocks(msg Message) []anthropicContentBlock {
	if msg.Role == llmtypes.RoleTool {
		var blocks []anthropicContentBlock
		for _, r := range msg.ToolResults() {
			blocks = append(blocks, toolResultBlock(r))
		}
		return blocks
	}

	var blocks []anthropicContentBlock
	for _, b := range msg.Content.BlockList() {
		switch block := b.(type) {
		case llmtypes.TextBlock:
			// Empty text blocks are rejected by the API
			if block.Text != "" {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: block.Text})
			}
		case llmtypes.ToolUseBlock:
			blocks = append(blocks, anthropicContentBlock{
				Type:  "tool_use",
				ID:    block.Call.ID,
				Name:  block.Call.Name,
				Input: nonNilArgs(block.Call.Arguments),
			})
		case llmtypes.ToolResultBlock:
			blocks = append(blocks, toolResultBlock(block))
		}
	}
	return blocks
}

func toolResultBlock(r llmtypes.ToolResultBlock) anthropicContentBlock {
	return anthropicContentBlock{
		Type:      "tool_result",
		ToolUseID: r.ToolCallID,
		Content:   r.Content,
		IsError:   r.IsError,
	}
}

// convertAnthropicResponse extracts text and tool_use blocks
func convertAnthropicResponse(resp anthropicResponse) *Response {
	result := &Response{
		Model:        resp.Model,
		Usage:        llmtypes.NewUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		FinishReason: resp.StopReason,
	}

	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args, _ := block.Input.(map[string]any)
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        ensureCallID(block.ID),
				Name:      block.Name,
				Arguments: nonNilArgs(args),
			})
		}
	}
	result.Content = text.String()
	return result
}

// anthropicStreamError maps an in-band error event onto the taxonomy
func anthropicStreamError(e *anthropicError) error {
	switch e.Type {
	case "authentication_error", "permission_error":
		return errors.NewProviderAuthError(ProviderAnthropic, 0, e.Message)
	case "rate_limit_error":
		return errors.NewProviderRateLimitError(ProviderAnthropic, 0, e.Message)
	default:
		return errors.NewProviderError(ProviderAnthropic, 0, e.Type+": "+e.Message, nil)
	}
}

// pendingToolUse is a tool_use block whose input is still streaming
type pendingToolUse struct {
	call ToolCall
	args strings.Builder
}

// anthropicAccumulator builds a Response from Messages stream events
type anthropicAccumulator struct {
	model      string
	content    strings.Builder
	pending    map[int]*pendingToolUse
	toolCalls  []ToolCall
	usage      anthropicUsage
	stopReason string
	complete   bool
}

func newAnthropicAccumulator(model string) *anthropicAccumulator {
	return &anthropicAccumulator{model: model, pending: map[int]*pendingToolUse{}}
}

func (a *anthropicAccumulator) HandleEvent(event SSEEvent) (string, error) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(event.Data, &ev); err != nil {
		return "", decodeError(ProviderAnthropic, err)
	}

	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			if ev.Message.Model != "" {
				a.model = ev.Message.Model
			}
			a.usage = ev.Message.Usage
		}
	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
			a.pending[ev.Index] = &pendingToolUse{call: ToolCall{
				ID:   ev.ContentBlock.ID,
				Name: ev.ContentBlock.Name,
			}}
		}
	case "content_block_delta":
		if ev.Delta == nil {
			return "", nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			a.content.WriteString(ev.Delta.Text)
			return ev.Delta.Text, nil
		case "input_json_delta":
			if p, ok := a.pending[ev.Index]; ok {
				p.args.WriteString(ev.Delta.PartialJSON)
			}
		}
	case "content_block_stop":
		if p, ok := a.pending[ev.Index]; ok {
			p.call.ID = ensureCallID(p.call.ID)
			p.call.Arguments = parseArguments(p.args.String())
			a.toolCalls = append(a.toolCalls, p.call)
			delete(a.pending, ev.Index)
		}
	case "message_delta":
		if ev.Usage != nil {
			a.usage.OutputTokens = ev.Usage.OutputTokens
		}
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			a.stopReason = ev.Delta.StopReason
		}
	case "message_stop":
		a.complete = true
	case "error":
		if ev.Error != nil {
			return "", anthropicStreamError(ev.Error)
		}
	}
	return "", nil
}

func (a *anthropicAccumulator) IsComplete() bool {
	return a.complete
}

func (a *anthropicAccumulator) Finish() error {
	if !a.complete {
		return errors.NewProviderError(ProviderAnthropic, http.StatusOK, "stream ended unexpectedly", nil)
	}
	return nil
}

func (a *anthropicAccumulator) Build() *Response {
	return &Response{
		Content:      a.content.String(),
		Model:        a.model,
		Usage:        llmtypes.NewUsage(a.usage.InputTokens, a.usage.OutputTokens),
		FinishReason: a.stopReason,
		ToolCalls:    a.toolCalls,
	}
}
