package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/user/crmassist/internal/errors"
	"github.com/user/crmassist/internal/llmtypes"
)

// OpenAIClient implements Provider for OpenAI-compatible chat completions APIs
type OpenAIClient struct {
	*BaseLLMClient
}

// openaiRequest represents the request body for the chat completions API
type openaiRequest struct {
	Model         string               `json:"model"`
	Messages      []openaiMessage      `json:"messages"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   float64              `json:"temperature"`
	Tools         []map[string]any     `json:"tools,omitempty"`
	ToolChoice    string               `json:"tool_choice,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
	StreamOptions *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// openaiMessage represents a message in OpenAI format
type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

// openaiToolCall represents a tool call in OpenAI format
type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiToolCallFunc `json:"function"`
}

// openaiToolCallFunc carries the function name and its JSON-encoded arguments
type openaiToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// openaiResponse represents the response from the chat completions API
type openaiResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []openaiChoice     `json:"choices"`
	Usage   openaiUsage        `json:"usage"`
	Error   *openaiErrorDetail `json:"error,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openaiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// openaiStreamChunk is one chat.completion.chunk event
type openaiStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int                `json:"index"`
				ID       string             `json:"id"`
				Function openaiToolCallFunc `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage       `json:"usage"`
	Error *openaiErrorDetail `json:"error,omitempty"`
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(opts Options) *OpenAIClient {
	return &OpenAIClient{
		BaseLLMClient: newBaseLLMClient(ProviderOpenAI, "https://api.openai.com/v1", opts, openAICatalog),
	}
}

func (c *OpenAIClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// Chat sends one non-streaming turn
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*Response, error) {
	oaReq := c.convertRequest(req)

	var oaResp openaiResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/chat/completions", c.headers(), oaReq, &oaResp); err != nil {
		return nil, err
	}
	if oaResp.Error != nil {
		return nil, errors.NewProviderError(c.provider, http.StatusOK, oaResp.Error.Message, nil)
	}

	resp := c.convertResponse(oaResp)
	if resp.Model == "" {
		resp.Model = oaReq.Model
	}
	return resp, nil
}

// Stream sends one streaming turn
func (c *OpenAIClient) Stream(ctx context.Context, req ChatRequest) iter.Seq2[StreamChunk, error] {
	oaReq := c.convertRequest(req)
	oaReq.Stream = true
	oaReq.StreamOptions = &openaiStreamOptions{IncludeUsage: true}

	return c.stream(ctx, c.baseURL+"/chat/completions", c.headers(), oaReq, newOpenAIAccumulator(oaReq.Model))
}

// ValidateKey lists models, the cheapest authenticated call
func (c *OpenAIClient) ValidateKey(ctx context.Context) bool {
	return c.probe(ctx, c.baseURL+"/models", c.headers())
}

// convertRequest converts a vendor-neutral request to OpenAI format
func (c *OpenAIClient) convertRequest(req ChatRequest) openaiRequest {
	oaReq := openaiRequest{
		Model:       c.ResolveModel(req.Model),
		Messages:    convertOpenAIMessages(req.Messages),
		MaxTokens:   c.maxTokensFor(req),
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		oaReq.Tools = ToOpenAITools(req.Tools)
		oaReq.ToolChoice = "auto"
	}
	return oaReq
}

// convertOpenAIMessages keeps system as a message and emits one tool message per result
func convertOpenAIMessages(msgs []Message) []openaiMessage {
	out := make([]openaiMessage, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case llmtypes.RoleAssistant:
			om := openaiMessage{Role: "assistant", Content: msg.Content.String()}
			for _, tc := range msg.ToolCalls() {
				args, _ := json.Marshal(nonNilArgs(tc.Arguments))
				om.ToolCalls = append(om.ToolCalls, openaiToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: openaiToolCallFunc{Name: tc.Name, Arguments: string(args)},
				})
			}
			out = append(out, om)
		case llmtypes.RoleTool:
			for _, r := range msg.ToolResults() {
				out = append(out, openaiMessage{Role: "tool", ToolCallID: r.ToolCallID, Content: r.Content})
			}
		default:
			// User turns framed for another vendor may carry tool results
			for _, r := range msg.ToolResults() {
				out = append(out, openaiMessage{Role: "tool", ToolCallID: r.ToolCallID, Content: r.Content})
			}
			if text := msg.Content.String(); text != "" || !msg.Content.IsBlocks() {
				out = append(out, openaiMessage{Role: string(msg.Role), Content: text})
			}
		}
	}
	return out
}

// convertResponse converts an OpenAI response to the vendor-neutral form
func (c *OpenAIClient) convertResponse(resp openaiResponse) *Response {
	result := &Response{
		Model: resp.Model,
		Usage: llmtypes.NewUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) == 0 {
		return result
	}

	choice := resp.Choices[0]
	result.Content = choice.Message.Content
	result.FinishReason = choice.FinishReason
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        ensureCallID(tc.ID),
			Name:      tc.Function.Name,
			Arguments: parseArguments(tc.Function.Arguments),
		})
	}
	return result
}

// openaiAccumulator builds a Response from chat.completion.chunk events
type openaiAccumulator struct {
	model        string
	content      strings.Builder
	calls        map[int]*openaiToolCall
	usage        Usage
	finishReason string
	done         bool
}

func newOpenAIAccumulator(model string) *openaiAccumulator {
	return &openaiAccumulator{model: model, calls: map[int]*openaiToolCall{}}
}

func (a *openaiAccumulator) HandleEvent(event SSEEvent) (string, error) {
	if IsSSEDone(event.Data) {
		a.done = true
		return "", nil
	}

	var chunk openaiStreamChunk
	if err := json.Unmarshal(event.Data, &chunk); err != nil {
		return "", decodeError(ProviderOpenAI, err)
	}
	if chunk.Error != nil {
		return "", errors.NewProviderError(ProviderOpenAI, http.StatusOK, chunk.Error.Message, nil)
	}
	if chunk.Model != "" {
		a.model = chunk.Model
	}
	if chunk.Usage != nil {
		a.usage = llmtypes.NewUsage(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
	}

	var text strings.Builder
	for _, choice := range chunk.Choices {
		text.WriteString(choice.Delta.Content)
		for _, d := range choice.Delta.ToolCalls {
			call, ok := a.calls[d.Index]
			if !ok {
				call = &openaiToolCall{}
				a.calls[d.Index] = call
			}
			if d.ID != "" {
				call.ID = d.ID
			}
			call.Function.Name += d.Function.Name
			call.Function.Arguments += d.Function.Arguments
		}
		if choice.FinishReason != nil {
			a.finishReason = *choice.FinishReason
		}
	}
	a.content.WriteString(text.String())
	return text.String(), nil
}

func (a *openaiAccumulator) IsComplete() bool {
	return a.done
}

func (a *openaiAccumulator) Finish() error {
	if !a.done && a.finishReason == "" {
		return errors.NewProviderError(ProviderOpenAI, http.StatusOK, "stream ended unexpectedly", nil)
	}
	return nil
}

func (a *openaiAccumulator) Build() *Response {
	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	resp := &Response{
		Content:      a.content.String(),
		Model:        a.model,
		Usage:        a.usage,
		FinishReason: a.finishReason,
	}
	for _, i := range indexes {
		call := a.calls[i]
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        ensureCallID(call.ID),
			Name:      call.Function.Name,
			Arguments: parseArguments(call.Function.Arguments),
		})
	}
	return resp
}

// parseArguments decodes JSON-string arguments; malformed input yields an
// empty map so the executor reports the missing arguments to the model
func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// ensureCallID synthesizes a correlation id when the vendor did not assign one
func ensureCallID(id string) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("call_%s", uuid.NewString())
}

func nonNilArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}
