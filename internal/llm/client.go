package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"slices"
	"strings"
)

// BaseLLMClient provides the functionality shared by all adapters:
// HTTP transport, error translation, model resolution and token estimates.
type BaseLLMClient struct {
	provider     string
	retryClient  *RetryClient
	apiKey       string
	baseURL      string
	defaultModel string
	models       []string
	aliases      map[string]string
	maxTokens    int
}

// newBaseLLMClient creates a base client from options and the vendor catalog
func newBaseLLMClient(provider, defaultBaseURL string, opts Options, catalog modelCatalog) *BaseLLMClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	models := slices.Clone(catalog.models)
	for _, m := range opts.Models {
		if !slices.Contains(models, m) {
			models = append(models, m)
		}
	}

	defaultModel := catalog.defaultModel
	if opts.DefaultModel != "" {
		defaultModel = catalog.resolve(opts.DefaultModel)
		if !slices.Contains(models, defaultModel) {
			models = append(models, defaultModel)
		}
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &BaseLLMClient{
		provider:     provider,
		retryClient:  NewRetryClient(opts.Timeout, opts.Retry),
		apiKey:       opts.APIKey,
		baseURL:      baseURL,
		defaultModel: defaultModel,
		models:       models,
		aliases:      catalog.aliases,
		maxTokens:    maxTokens,
	}
}

func (c modelCatalog) resolve(model string) string {
	if target, ok := c.aliases[model]; ok {
		return target
	}
	return model
}

// Name returns the provider name
func (b *BaseLLMClient) Name() string {
	return b.provider
}

// ResolveModel maps an alias to its concrete id; empty resolves to the default
func (b *BaseLLMClient) ResolveModel(model string) string {
	if model == "" {
		return b.defaultModel
	}
	if target, ok := b.aliases[model]; ok {
		return target
	}
	return model
}

// AvailableModels returns the advertised models
func (b *BaseLLMClient) AvailableModels() []string {
	return slices.Clone(b.models)
}

// DefaultModel returns the default model
func (b *BaseLLMClient) DefaultModel() string {
	return b.defaultModel
}

// CountTokens estimates tokens; no vendor tokenizer is called
func (b *BaseLLMClient) CountTokens(text, _ string) int {
	return EstimateTokens(text)
}

func (b *BaseLLMClient) maxTokensFor(req ChatRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return b.maxTokens
}

// doHTTPRequest executes an HTTP request with an optional JSON payload.
// The caller is responsible for closing the response body and handling status codes.
func (b *BaseLLMClient) doHTTPRequest(
	ctx context.Context,
	method string,
	url string,
	headers map[string]string,
	payload any,
) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	return b.retryClient.Do(httpReq)
}

// doJSON performs a request and decodes a 200 response into out.
// Every failure is returned as one of the provider error variants.
func (b *BaseLLMClient) doJSON(ctx context.Context, method, url string, headers map[string]string, payload, out any) error {
	resp, err := b.openRequest(ctx, method, url, headers, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(b.provider, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return decodeError(b.provider, err)
	}
	return nil
}

// openRequest performs a request and returns the response only when it is a 200
func (b *BaseLLMClient) openRequest(ctx context.Context, method, url string, headers map[string]string, payload any) (*http.Response, error) {
	resp, err := b.doHTTPRequest(ctx, method, url, headers, payload)
	if err != nil {
		return nil, transportError(b.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		return nil, translateHTTPError(b.provider, resp, body)
	}
	return resp, nil
}

// probe reports whether a GET request succeeds with a 200
func (b *BaseLLMClient) probe(ctx context.Context, url string, headers map[string]string) bool {
	if b.apiKey == "" {
		return false
	}
	resp, err := b.doHTTPRequest(ctx, http.MethodGet, url, headers, nil)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// streamAccumulator folds vendor stream events into a response
type streamAccumulator interface {
	// HandleEvent processes one event and returns any new text
	HandleEvent(event SSEEvent) (string, error)
	// IsComplete reports whether the vendor signalled the end of the message
	IsComplete() bool
	// Finish is called when the stream ends; it reports a truncated stream
	Finish() error
	// Build returns the aggregated response
	Build() *Response
}

// stream opens an SSE request and drives acc over its events, yielding text
// fragments and then exactly one final chunk with the aggregated usage.
func (b *BaseLLMClient) stream(ctx context.Context, url string, headers map[string]string, payload any, acc streamAccumulator) iter.Seq2[StreamChunk, error] {
	return func(yield func(StreamChunk, error) bool) {
		resp, err := b.openRequest(ctx, http.MethodPost, url, headers, payload)
		if err != nil {
			yield(StreamChunk{}, err)
			return
		}
		defer func() { _ = resp.Body.Close() }()

		for event, err := range NewSSEParser(resp.Body).Events() {
			if err != nil {
				yield(StreamChunk{}, transportError(b.provider, err))
				return
			}
			delta, err := acc.HandleEvent(event)
			if err != nil {
				yield(StreamChunk{}, err)
				return
			}
			if delta != "" && !yield(StreamChunk{Content: delta}, nil) {
				return
			}
			if acc.IsComplete() {
				break
			}
		}

		if err := acc.Finish(); err != nil {
			yield(StreamChunk{}, err)
			return
		}

		final := acc.Build()
		yield(StreamChunk{
			IsFinal:      true,
			Usage:        final.Usage,
			FinishReason: final.FinishReason,
			ToolCalls:    final.ToolCalls,
		}, nil)
	}
}
