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

// GeminiClient implements Provider for the Google generateContent API
type GeminiClient struct {
	*BaseLLMClient
}

// geminiRequest represents the request body for generateContent
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	Tools             []map[string]any        `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

// geminiContent represents content in Gemini format
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiPart represents one part of content
type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
	ThoughtSignature string                  `json:"thoughtSignature,omitempty"` // Must be echoed back with the call
}

type geminiFunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// geminiFunctionResponse is correlated to its call by name
type geminiFunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// geminiResponse is both the unary response and each streamed event
type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	UsageMetadata  *geminiUsage      `json:"usageMetadata,omitempty"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	ModelVersion string       `json:"modelVersion,omitempty"`
	Error        *geminiError `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(opts Options) *GeminiClient {
	return &GeminiClient{
		BaseLLMClient: newBaseLLMClient(ProviderGemini, "https://generativelanguage.googleapis.com", opts, geminiCatalog),
	}
}

func (c *GeminiClient) headers() map[string]string {
	return map[string]string{"x-goog-api-key": c.apiKey}
}

func (c *GeminiClient) modelURL(model, method string) string {
	return c.baseURL + "/v1beta/models/" + strings.TrimPrefix(model, "models/") + ":" + method
}

// Chat sends one non-streaming turn
func (c *GeminiClient) Chat(ctx context.Context, req ChatRequest) (*Response, error) {
	model := c.ResolveModel(req.Model)
	gemReq := c.convertRequest(req)

	var gemResp geminiResponse
	if err := c.doJSON(ctx, http.MethodPost, c.modelURL(model, "generateContent"), c.headers(), gemReq, &gemResp); err != nil {
		return nil, err
	}

	acc := newGeminiAccumulator(model)
	if err := acc.handle(gemResp); err != nil {
		return nil, err
	}
	return acc.Build(), nil
}

// Stream sends one streaming turn
func (c *GeminiClient) Stream(ctx context.Context, req ChatRequest) iter.Seq2[StreamChunk, error] {
	model := c.ResolveModel(req.Model)
	gemReq := c.convertRequest(req)

	return c.stream(ctx, c.modelURL(model, "streamGenerateContent?alt=sse"), c.headers(), gemReq, newGeminiAccumulator(model))
}

// ValidateKey lists a single model
func (c *GeminiClient) ValidateKey(ctx context.Context) bool {
	return c.probe(ctx, c.baseURL+"/v1beta/models?pageSize=1", c.headers())
}

// convertRequest lifts system text into systemInstruction and maps assistant to "model"
func (c *GeminiClient) convertRequest(req ChatRequest) geminiRequest {
	var system []string
	var contents []geminiContent

	// Function responses are matched by name, so remember which call id had which name
	callNames := map[string]string{}

	for _, msg := range req.Messages {
		if msg.Role == llmtypes.RoleSystem {
			if text := msg.Content.String(); text != "" {
				system = append(system, text)
			}
			continue
		}

		role := "user"
		if msg.Role == llmtypes.RoleAssistant {
			role = "model"
		}
		parts := geminiParts(msg, callNames)
		if len(parts) == 0 {
			continue
		}

		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			continue
		}
		contents = append(contents, geminiContent{Role: role, Parts: parts})
	}

	gemReq := geminiRequest{
		Contents: contents,
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: c.maxTokensFor(req),
		},
	}
	if len(system) > 0 {
		gemReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}
	if len(req.Tools) > 0 {
		gemReq.Tools = ToGeminiTools(req.Tools)
	}
	return gemReq
}

func geminiParts(msg Message, callNames map[string]string) []geminiPart {
	var parts []geminiPart

	results := msg.ToolResults()
	if msg.Role == llmtypes.RoleTool {
		for _, r := range results {
			parts = append(parts, functionResponsePart(r, callNames))
		}
		return parts
	}

	for _, b := range msg.Content.BlockList() {
		switch block := b.(type) {
		case llmtypes.TextBlock:
			if block.Text != "" {
				parts = append(parts, geminiPart{Text: block.Text})
			}
		case llmtypes.ToolUseBlock:
			callNames[block.Call.ID] = block.Call.Name
			parts = append(parts, geminiPart{
				FunctionCall: &geminiFunctionCall{
					Name: block.Call.Name,
					Args: nonNilArgs(block.Call.Arguments),
				},
				ThoughtSignature: block.Call.ThoughtSignature,
			})
		case llmtypes.ToolResultBlock:
			parts = append(parts, functionResponsePart(block, callNames))
		}
	}
	return parts
}

func functionResponsePart(r llmtypes.ToolResultBlock, callNames map[string]string) geminiPart {
	name := r.Name
	if name == "" {
		name = callNames[r.ToolCallID]
	}
	key := "result"
	if r.IsError {
		key = "error"
	}
	return geminiPart{
		FunctionResponse: &geminiFunctionResponse{
			Name:     name,
			Response: map[string]any{key: r.Content},
		},
	}
}

// geminiAccumulator builds a Response from one or more generateContent payloads
type geminiAccumulator struct {
	model        string
	text         strings.Builder
	toolCalls    []ToolCall
	usage        Usage
	finishReason string
	received     bool
}

func newGeminiAccumulator(model string) *geminiAccumulator {
	return &geminiAccumulator{model: model}
}

func (a *geminiAccumulator) HandleEvent(event SSEEvent) (string, error) {
	var chunk geminiResponse
	if err := json.Unmarshal(event.Data, &chunk); err != nil {
		return "", decodeError(ProviderGemini, err)
	}
	before := a.text.Len()
	if err := a.handle(chunk); err != nil {
		return "", err
	}
	return a.text.String()[before:], nil
}

// handle folds one payload into the accumulator
func (a *geminiAccumulator) handle(chunk geminiResponse) error {
	a.received = true

	if chunk.Error != nil {
		return errors.NewProviderError(ProviderGemini, chunk.Error.Code, chunk.Error.Message, nil)
	}
	if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
		return errors.NewProviderError(ProviderGemini, http.StatusOK, "prompt blocked: "+chunk.PromptFeedback.BlockReason, nil)
	}
	if chunk.UsageMetadata != nil {
		a.usage = llmtypes.NewUsage(chunk.UsageMetadata.PromptTokenCount, chunk.UsageMetadata.CandidatesTokenCount)
	}
	if chunk.ModelVersion != "" {
		a.model = chunk.ModelVersion
	}
	if len(chunk.Candidates) == 0 {
		return nil
	}

	candidate := chunk.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return errors.NewProviderError(ProviderGemini, http.StatusOK, "response blocked for safety reasons", nil)
	}
	if candidate.FinishReason != "" {
		a.finishReason = candidate.FinishReason
	}

	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			a.text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			// Function calls arrive complete, never as partial JSON
			a.toolCalls = append(a.toolCalls, ToolCall{
				ID:               ensureCallID(part.FunctionCall.ID),
				Name:             part.FunctionCall.Name,
				Arguments:        nonNilArgs(part.FunctionCall.Args),
				ThoughtSignature: part.ThoughtSignature,
			})
		}
	}
	return nil
}

// IsComplete is always false; the stream simply ends after the last payload
func (a *geminiAccumulator) IsComplete() bool {
	return false
}

func (a *geminiAccumulator) Finish() error {
	if !a.received {
		return errors.NewProviderError(ProviderGemini, http.StatusOK, "stream ended without content", nil)
	}
	return nil
}

func (a *geminiAccumulator) Build() *Response {
	return &Response{
		Content:      a.text.String(),
		Model:        a.model,
		Usage:        a.usage,
		FinishReason: a.finishReason,
		ToolCalls:    a.toolCalls,
	}
}
