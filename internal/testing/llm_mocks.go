package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

// WriteSSE writes one Server-Sent Event
func WriteSSE(w http.ResponseWriter, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// WriteSSEDone writes the OpenAI end-of-stream marker
func WriteSSEDone(w http.ResponseWriter) {
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
}

func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

// MustJSON marshals v or panics; for building fixtures only
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

type MockServerOption func(*mockServerConfig)

type mockServerConfig struct {
	validateAuth bool
	authHeader   string
	authValue    string
}

// WithAuthValidation makes the server assert a header value on every request
func WithAuthValidation(header, value string) MockServerOption {
	return func(cfg *mockServerConfig) {
		cfg.validateAuth = true
		cfg.authHeader = header
		cfg.authValue = value
	}
}

// NewMockServer starts an httptest server that is closed with the test
func NewMockServer(t *testing.T, handler http.HandlerFunc, opts ...MockServerOption) *httptest.Server {
	t.Helper()
	cfg := &mockServerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	wrappedHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.validateAuth {
			if r.Header.Get(cfg.authHeader) != cfg.authValue {
				t.Errorf("Expected %s header '%s', got '%s'", cfg.authHeader, cfg.authValue, r.Header.Get(cfg.authHeader))
			}
		}
		handler(w, r)
	})

	server := httptest.NewServer(wrappedHandler)
	t.Cleanup(server.Close)
	return server
}

// JSONHandler replies 200 with a fixed JSON body
func JSONHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetJSONHeaders(w)
		_, _ = w.Write([]byte(body))
	}
}

// SequenceHandler replies with each body in turn, repeating the last
func SequenceHandler(bodies ...string) http.HandlerFunc {
	var n atomic.Int64
	return func(w http.ResponseWriter, r *http.Request) {
		i := int(n.Add(1)) - 1
		if i >= len(bodies) {
			i = len(bodies) - 1
		}
		SetJSONHeaders(w)
		_, _ = w.Write([]byte(bodies[i]))
	}
}

func StatusHandler(status int, errorBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetJSONHeaders(w)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(errorBody))
	}
}

func UnauthorizedHandler(errorBody string) http.HandlerFunc {
	return StatusHandler(http.StatusUnauthorized, errorBody)
}

// RateLimitHandler replies 429 with a Retry-After header in seconds when retryAfter > 0
func RateLimitHandler(retryAfter int, errorBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
		StatusHandler(http.StatusTooManyRequests, errorBody)(w, r)
	}
}

func InternalErrorHandler(errorBody string) http.HandlerFunc {
	return StatusHandler(http.StatusInternalServerError, errorBody)
}

// OpenAI fixtures

// OpenAIToolCall is a tool call fixture for OpenAI responses
type OpenAIToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// OpenAIChatResponse builds a chat.completion body
func OpenAIChatResponse(content string, inputTokens, outputTokens int, calls ...OpenAIToolCall) string {
	message := map[string]any{"role": "assistant", "content": content}
	finish := "stop"
	if len(calls) > 0 {
		var toolCalls []map[string]any
		for _, c := range calls {
			toolCalls = append(toolCalls, map[string]any{
				"id":   c.ID,
				"type": "function",
				"function": map[string]any{
					"name":      c.Name,
					"arguments": MustJSON(c.Arguments),
				},
			})
		}
		message["tool_calls"] = toolCalls
		finish = "tool_calls"
	}
	return MustJSON(map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"model":   "gpt-4o",
		"choices": []any{map[string]any{"index": 0, "message": message, "finish_reason": finish}},
		"usage": map[string]any{
			"prompt_tokens":     inputTokens,
			"completion_tokens": outputTokens,
			"total_tokens":      inputTokens + outputTokens,
		},
	})
}

// OpenAIStreamChunk builds one chat.completion.chunk with optional content and finish reason
func OpenAIStreamChunk(content string, finishReason string) string {
	delta := map[string]any{}
	if content != "" {
		delta["content"] = content
	}
	var fr any
	if finishReason != "" {
		fr = finishReason
	}
	return MustJSON(map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion.chunk",
		"model":   "gpt-4o",
		"choices": []any{map[string]any{"index": 0, "delta": delta, "finish_reason": fr}},
	})
}

// OpenAIToolCallChunk builds a tool call delta; id and name are only sent on the first fragment
func OpenAIToolCallChunk(index int, id, name, argsFragment string) string {
	call := map[string]any{"index": index, "function": map[string]any{"arguments": argsFragment}}
	if id != "" {
		call["id"] = id
		call["type"] = "function"
	}
	if name != "" {
		call["function"].(map[string]any)["name"] = name
	}
	return MustJSON(map[string]any{
		"object":  "chat.completion.chunk",
		"model":   "gpt-4o",
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"tool_calls": []any{call}}, "finish_reason": nil}},
	})
}

// OpenAIUsageChunk is the trailing chunk sent with stream_options.include_usage
func OpenAIUsageChunk(inputTokens, outputTokens int) string {
	return MustJSON(map[string]any{
		"object":  "chat.completion.chunk",
		"model":   "gpt-4o",
		"choices": []any{},
		"usage":   map[string]any{"prompt_tokens": inputTokens, "completion_tokens": outputTokens},
	})
}

// OpenAIStreamHandler streams content word by word then usage and [DONE]
func OpenAIStreamHandler(fragments ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetSSEHeaders(w)
		for _, f := range fragments {
			WriteSSE(w, "", OpenAIStreamChunk(f, ""))
		}
		WriteSSE(w, "", OpenAIStreamChunk("", "stop"))
		WriteSSE(w, "", OpenAIUsageChunk(10, 5))
		WriteSSEDone(w)
	}
}

// Anthropic fixtures

// AnthropicText builds a text content block
func AnthropicText(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

// AnthropicToolUse builds a tool_use content block
func AnthropicToolUse(id, name string, input map[string]any) map[string]any {
	return map[string]any{"type": "tool_use", "id": id, "name": name, "input": input}
}

// AnthropicMessageResponse builds a messages.create body
func AnthropicMessageResponse(stopReason string, inputTokens, outputTokens int, blocks ...map[string]any) string {
	content := make([]any, 0, len(blocks))
	for _, b := range blocks {
		content = append(content, b)
	}
	return MustJSON(map[string]any{
		"id":          "msg_123",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-sonnet-4-20250514",
		"content":     content,
		"stop_reason": stopReason,
		"usage":       map[string]any{"input_tokens": inputTokens, "output_tokens": outputTokens},
	})
}

func AnthropicMessageStart(inputTokens int) string {
	return fmt.Sprintf(`{"type":"message_start","message":{"id":"msg_123","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","stop_reason":null,"usage":{"input_tokens":%d,"output_tokens":1}}}`, inputTokens)
}

func AnthropicTextBlockStart(index int) string {
	return fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}`, index)
}

func AnthropicToolUseBlockStart(index int, id, name string) string {
	return fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"tool_use","id":%q,"name":%q,"input":{}}}`, index, id, name)
}

func AnthropicTextDelta(index int, text string) string {
	return MustJSON(map[string]any{"type": "content_block_delta", "index": index, "delta": map[string]any{"type": "text_delta", "text": text}})
}

func AnthropicInputJSONDelta(index int, partial string) string {
	return MustJSON(map[string]any{"type": "content_block_delta", "index": index, "delta": map[string]any{"type": "input_json_delta", "partial_json": partial}})
}

func AnthropicContentBlockStop(index int) string {
	return fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, index)
}

func AnthropicMessageDelta(stopReason string, outputTokens int) string {
	return fmt.Sprintf(`{"type":"message_delta","delta":{"stop_reason":"%s","stop_sequence":null},"usage":{"output_tokens":%d}}`, stopReason, outputTokens)
}

func AnthropicMessageStop() string {
	return `{"type":"message_stop"}`
}

// AnthropicStreamHandler streams a single text block
func AnthropicStreamHandler(fragments ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetSSEHeaders(w)
		WriteSSE(w, "message_start", AnthropicMessageStart(10))
		WriteSSE(w, "content_block_start", AnthropicTextBlockStart(0))
		WriteSSE(w, "ping", `{"type":"ping"}`)
		for _, f := range fragments {
			WriteSSE(w, "content_block_delta", AnthropicTextDelta(0, f))
		}
		WriteSSE(w, "content_block_stop", AnthropicContentBlockStop(0))
		WriteSSE(w, "message_delta", AnthropicMessageDelta("end_turn", 5))
		WriteSSE(w, "message_stop", AnthropicMessageStop())
	}
}

// Gemini fixtures

// GeminiText builds a text part
func GeminiText(text string) map[string]any {
	return map[string]any{"text": text}
}

// GeminiFunctionCall builds a functionCall part
func GeminiFunctionCall(name string, args map[string]any) map[string]any {
	return map[string]any{"functionCall": map[string]any{"name": name, "args": args}}
}

// GeminiResponse builds a generateContent body; it is also a valid stream event
func GeminiResponse(finishReason string, inputTokens, outputTokens int, parts ...map[string]any) string {
	ps := make([]any, 0, len(parts))
	for _, p := range parts {
		ps = append(ps, p)
	}
	candidate := map[string]any{"content": map[string]any{"role": "model", "parts": ps}, "index": 0}
	if finishReason != "" {
		candidate["finishReason"] = finishReason
	}
	return MustJSON(map[string]any{
		"candidates": []any{candidate},
		"usageMetadata": map[string]any{
			"promptTokenCount":     inputTokens,
			"candidatesTokenCount": outputTokens,
			"totalTokenCount":      inputTokens + outputTokens,
		},
	})
}

// GeminiStreamHandler streams text fragments as SSE generateContent payloads
func GeminiStreamHandler(fragments ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetSSEHeaders(w)
		for i, f := range fragments {
			finish := ""
			if i == len(fragments)-1 {
				finish = "STOP"
			}
			WriteSSE(w, "", GeminiResponse(finish, 10, 5, GeminiText(f)))
		}
	}
}

// RetryHandler fails a fixed number of times before delegating
type RetryHandler struct {
	callCount      atomic.Int64
	failUntil      int
	failStatusCode int
	failBody       string
	successHandler http.HandlerFunc
}

func NewRetryHandler(failUntil, failStatusCode int, failBody string, successHandler http.HandlerFunc) *RetryHandler {
	return &RetryHandler{
		failUntil:      failUntil,
		failStatusCode: failStatusCode,
		failBody:       failBody,
		successHandler: successHandler,
	}
}

func (h *RetryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if int(h.callCount.Add(1)) <= h.failUntil {
		w.WriteHeader(h.failStatusCode)
		_, _ = w.Write([]byte(h.failBody))
		return
	}
	h.successHandler(w, r)
}

func (h *RetryHandler) CallCount() int {
	return int(h.callCount.Load())
}
