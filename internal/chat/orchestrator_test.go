package chat

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/user/crmassist/internal/contextbuilder"
	"github.com/user/crmassist/internal/conversation"
	"github.com/user/crmassist/internal/crm"
	"github.com/user/crmassist/internal/errors"
	"github.com/user/crmassist/internal/llm"
	"github.com/user/crmassist/internal/llmtypes"
	"github.com/user/crmassist/internal/logging"
	"github.com/user/crmassist/internal/prompts"
	testHelpers "github.com/user/crmassist/internal/testing"
	"github.com/user/crmassist/internal/tools"
)

// fixedProviders serves prebuilt adapters by name
type fixedProviders map[string]llm.Provider

func (f fixedProviders) Get(_ context.Context, name string) (llm.Provider, error) {
	p, ok := f[name]
	if !ok {
		return nil, errors.NewProviderError(name, 0, "unsupported provider", nil)
	}
	return p, nil
}

func (f fixedProviders) DefaultName() string {
	return "mock"
}

// bodyRecorder wraps a handler and keeps every request body
type bodyRecorder struct {
	mu     sync.Mutex
	bodies []string
	next   http.HandlerFunc
}

func (b *bodyRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.bodies = append(b.bodies, string(data))
	b.mu.Unlock()
	b.next(w, r)
}

func (b *bodyRecorder) Bodies() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.bodies...)
}

type fixture struct {
	orchestrator *Orchestrator
	store        *conversation.MemoryStore
	crm          *crm.MemoryStore
	logs         *observer.ObservedLogs
}

func newFixture(t *testing.T, providers ProviderSource, opts Options) *fixture {
	t.Helper()

	data := crm.NewMemoryStore(nil)
	if err := data.LoadSeedData([]byte(testHelpers.SampleCRMSeed())); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.NewWithCore(core)

	registry := tools.NewRegistry()
	if err := registry.RegisterAll(tools.CRMTools()...); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	pm := prompts.NewDefaultManager()
	store := conversation.NewMemoryStore()
	o := NewOrchestrator(Dependencies{
		Providers: providers,
		Store:     store,
		Context:   contextbuilder.NewBuilder(data, pm, contextbuilder.Config{Policy: contextbuilder.DefaultPolicy()}, logger),
		Tools:     registry,
		Executor:  tools.NewExecutor(registry, data, logger),
		Prompts:   pm,
		Logger:    logger,
	}, opts)

	return &fixture{orchestrator: o, store: store, crm: data, logs: logs}
}

func (f *fixture) newConversation(t *testing.T, opts ConversationOptions) string {
	t.Helper()
	conv, err := f.orchestrator.CreateConversation(context.Background(), opts)
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return conv.ID
}

func realRegistry(t *testing.T, provider string, handler http.Handler) *llm.Registry {
	t.Helper()
	server := testHelpers.NewMockServer(t, handler.ServeHTTP)
	return llm.NewRegistry(testHelpers.StaticCredentials("sk-test"), provider, map[string]llm.Options{
		provider: {BaseURL: server.URL},
	}, nil)
}

func TestSendMessage_OpenAIPlainTurn(t *testing.T) {
	recorder := &bodyRecorder{next: testHelpers.JSONHandler(testHelpers.OpenAIChatResponse("Hi there", 5, 3))}
	f := newFixture(t, realRegistry(t, llm.ProviderOpenAI, recorder), Options{})
	id := f.newConversation(t, ConversationOptions{Title: "Greeting", Provider: llm.ProviderOpenAI})

	reply, err := f.orchestrator.SendMessage(context.Background(), id, "Hello", "")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if reply.Content != "Hi there" || reply.TokensIn != 5 || reply.TokensOut != 3 {
		t.Errorf("unexpected reply %+v", reply)
	}
	if reply.Role != llmtypes.RoleAssistant || reply.ID == "" {
		t.Errorf("reply should be a stored assistant message, got %+v", reply)
	}

	stored, _ := f.store.Messages(context.Background(), id)
	if len(stored) != 2 || stored[0].Content != "Hello" || stored[1].Content != "Hi there" {
		t.Fatalf("unexpected stored history: %+v", stored)
	}

	bodies := recorder.Bodies()
	if len(bodies) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(bodies))
	}
	testHelpers.AssertContains(t, bodies[0], `"role":"system"`)
	testHelpers.AssertContains(t, bodies[0], `"lookup_person"`)
}

func TestSendMessage_AnthropicToolTurn(t *testing.T) {
	recorder := &bodyRecorder{next: testHelpers.SequenceHandler(
		testHelpers.AnthropicMessageResponse("tool_use", 12, 4,
			testHelpers.AnthropicToolUse("t1", "lookup_person", map[string]any{"person_id": "abc"}),
		),
		testHelpers.AnthropicMessageResponse("end_turn", 30, 6, testHelpers.AnthropicText("Found them")),
	)}
	f := newFixture(t, realRegistry(t, llm.ProviderAnthropic, recorder), Options{})
	id := f.newConversation(t, ConversationOptions{
		Title:    "Ada",
		Provider: llm.ProviderAnthropic,
		Entity:   &EntityRef{Type: crm.EntityPerson, ID: "abc"},
	})

	reply, err := f.orchestrator.SendMessage(context.Background(), id, "Who is this? Reply to me at me@example.com", "")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if reply.Content != "Found them" {
		t.Errorf("expected final content 'Found them', got %q", reply.Content)
	}
	if len(reply.ToolCalls) != 1 || reply.ToolCalls[0].Name != "lookup_person" {
		t.Fatalf("expected one lookup_person entry, got %+v", reply.ToolCalls)
	}
	if reply.ToolCalls[0].Status != "success" || reply.ToolCalls[0].Iteration != 1 {
		t.Errorf("unexpected tool record %+v", reply.ToolCalls[0])
	}
	if reply.TokensIn != 42 || reply.TokensOut != 10 {
		t.Errorf("expected tokens accumulated across iterations, got %d/%d", reply.TokensIn, reply.TokensOut)
	}

	bodies := recorder.Bodies()
	if len(bodies) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(bodies))
	}
	second := bodies[1]
	testHelpers.AssertContains(t, second, `"tool_use_id":"t1"`)
	testHelpers.AssertContains(t, second, "Ada Lovelace")
	for _, leak := range []string{"ada@acme.example", "555-123-4567", "555-987-6543", "me@example.com"} {
		testHelpers.AssertNotContains(t, second, leak)
	}

	stored, _ := f.store.Messages(context.Background(), id)
	if stored[0].Content != "Who is this? Reply to me at me@example.com" {
		t.Error("user message should be stored unfiltered")
	}
}

func TestSendMessage_MaxIterations(t *testing.T) {
	mock := testHelpers.NewMockProvider("mock",
		testHelpers.ToolCallResponse("Still looking", llmtypes.ToolCall{
			ID: "c1", Name: "lookup_person", Arguments: map[string]any{"person_id": "abc"},
		}),
	)
	f := newFixture(t, fixedProviders{"mock": mock}, Options{MaxIterations: 3})
	id := f.newConversation(t, ConversationOptions{Title: "Loop"})

	reply, err := f.orchestrator.SendMessage(context.Background(), id, "Find everything", "")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if mock.CallCount() != 3 {
		t.Errorf("expected 3 provider calls, got %d", mock.CallCount())
	}
	if !strings.HasSuffix(reply.Content, MaxIterationsMarker) || !strings.HasPrefix(reply.Content, "Still looking") {
		t.Errorf("expected partial text plus marker, got %q", reply.Content)
	}
	if len(reply.ToolCalls) != 3 {
		t.Errorf("expected 3 logged tool calls, got %d", len(reply.ToolCalls))
	}

	stored, _ := f.store.Messages(context.Background(), id)
	if !strings.Contains(stored[len(stored)-1].Content, MaxIterationsMarker) {
		t.Error("marker must be persisted")
	}
}

func TestSendMessage_ModelFallback(t *testing.T) {
	mock := testHelpers.NewMockProvider("mock", testHelpers.TextResponse("ok", 1, 1))
	f := newFixture(t, fixedProviders{"mock": mock}, Options{})
	id := f.newConversation(t, ConversationOptions{Title: "Fallback", Model: "gpt-9000"})

	reply, err := f.orchestrator.SendMessage(context.Background(), id, "hi", "")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if reply.Model != "mock-large" {
		t.Errorf("expected fallback to default model, got %q", reply.Model)
	}
	if got := mock.Requests()[0].Model; got != "mock-large" {
		t.Errorf("provider should receive the default model, got %q", got)
	}
	if f.logs.FilterMessage("Requested model not available, using provider default").Len() != 1 {
		t.Error("expected fallback warning to be logged")
	}

	if _, err := f.orchestrator.SendMessage(context.Background(), id, "again", "mock-small"); err != nil {
		t.Fatal(err)
	}
	if got := mock.Requests()[1].Model; got != "mock-small" {
		t.Errorf("advertised model should be used as is, got %q", got)
	}
}

func TestSendMessage_ToolErrorsKeepLooping(t *testing.T) {
	mock := testHelpers.NewMockProvider("mock",
		testHelpers.ToolCallResponse("", llmtypes.ToolCall{ID: "c1", Name: "no_such_tool"}),
		testHelpers.TextResponse("Recovered", 3, 2),
	)
	f := newFixture(t, fixedProviders{"mock": mock}, Options{})
	id := f.newConversation(t, ConversationOptions{Title: "Errors"})

	reply, err := f.orchestrator.SendMessage(context.Background(), id, "go", "")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Content != "Recovered" {
		t.Errorf("expected loop to continue after a failed tool, got %q", reply.Content)
	}
	if reply.ToolCalls[0].Status != "error" || reply.ToolCalls[0].Error != "Unknown tool: no_such_tool" {
		t.Errorf("unexpected record %+v", reply.ToolCalls[0])
	}

	tail := mock.Requests()[1].Messages
	results := tail[len(tail)-1].ToolResults()
	if len(results) != 1 || results[0].Content != "Error: Unknown tool: no_such_tool" {
		t.Errorf("failed tool should be reported inline, got %+v", results)
	}
}

func TestSendMessage_AbortOnToolError(t *testing.T) {
	mock := testHelpers.NewMockProvider("mock",
		testHelpers.ToolCallResponse("Trying", llmtypes.ToolCall{ID: "c1", Name: "no_such_tool"}),
		testHelpers.TextResponse("never", 1, 1),
	)
	f := newFixture(t, fixedProviders{"mock": mock}, Options{AbortOnToolError: true})
	id := f.newConversation(t, ConversationOptions{Title: "Abort"})

	reply, err := f.orchestrator.SendMessage(context.Background(), id, "go", "")
	if err != nil {
		t.Fatal(err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected the turn to stop after the first batch, got %d calls", mock.CallCount())
	}
	if reply.Content != "Trying\n\n"+ToolErrorMarker {
		t.Errorf("unexpected content %q", reply.Content)
	}
}

func TestSendMessage_ProviderErrorAbortsTurn(t *testing.T) {
	mock := testHelpers.NewMockProvider("mock")
	mock.Err = errors.NewProviderAuthError("mock", 401, "bad key")
	f := newFixture(t, fixedProviders{"mock": mock}, Options{})
	id := f.newConversation(t, ConversationOptions{Title: "Auth"})

	_, err := f.orchestrator.SendMessage(context.Background(), id, "hi", "")
	if !errors.IsProviderAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}

	stored, _ := f.store.Messages(context.Background(), id)
	if len(stored) != 1 {
		t.Errorf("only the user message should be stored, got %d", len(stored))
	}
}

func TestSendMessage_Cancelled(t *testing.T) {
	mock := testHelpers.NewMockProvider("mock", testHelpers.TextResponse("late", 1, 1))
	f := newFixture(t, fixedProviders{"mock": mock}, Options{})
	id := f.newConversation(t, ConversationOptions{Title: "Cancel"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.orchestrator.SendMessage(ctx, id, "hi", ""); err == nil {
		t.Fatal("expected cancellation error")
	}
	if mock.CallCount() != 0 {
		t.Errorf("no provider call should be made after cancellation, got %d", mock.CallCount())
	}
}

func TestSendMessage_UnknownConversation(t *testing.T) {
	mock := testHelpers.NewMockProvider("mock", testHelpers.TextResponse("x", 1, 1))
	f := newFixture(t, fixedProviders{"mock": mock}, Options{})

	_, err := f.orchestrator.SendMessage(context.Background(), "missing", "hi", "")
	var notFound *errors.ConversationNotFoundError
	if !stderrors.As(err, &notFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestSendMessage_SuggestionsAndTitle(t *testing.T) {
	mock := testHelpers.NewMockProvider("mock",
		testHelpers.TextResponse(testHelpers.SampleSuggestedUpdatesReply(), 8, 4),
		testHelpers.TextResponse("\"Ada's new role.\"", 2, 2),
	)
	f := newFixture(t, fixedProviders{"mock": mock}, Options{AutoTitle: true})
	id := f.newConversation(t, ConversationOptions{})

	reply, err := f.orchestrator.SendMessage(context.Background(), id, "Anything new about Ada?", "")
	if err != nil {
		t.Fatal(err)
	}

	if len(reply.Suggestions) != 1 {
		t.Fatalf("expected one suggestion, got %+v", reply.Suggestions)
	}
	s := reply.Suggestions[0]
	if s.EntityID != "abc" || s.Field != "title" || s.Value != "CTO" || s.Confidence != 0.8 {
		t.Errorf("unexpected suggestion %+v", s)
	}
	if reply.Content != "Ada recently moved to a new role." {
		t.Errorf("suggestion block should be removed from the reply, got %q", reply.Content)
	}

	conv, _ := f.store.GetConversation(context.Background(), id)
	if conv.Title != "Ada's new role" {
		t.Errorf("expected generated title, got %q", conv.Title)
	}
	if stats, _ := f.orchestrator.GetConversationStats(context.Background(), id); stats.TokensIn != 8 {
		t.Errorf("title generation should not count toward the turn, got %+v", stats)
	}
}

func TestSendMessageStream(t *testing.T) {
	mock := testHelpers.NewMockProvider("mock",
		testHelpers.ToolCallResponse("Checking ", llmtypes.ToolCall{
			ID: "c1", Name: "lookup_person", Arguments: map[string]any{"person_id": "grace"},
		}),
		testHelpers.TextResponse("Grace is a rear admiral", 7, 5),
	)
	f := newFixture(t, fixedProviders{"mock": mock}, Options{})
	id := f.newConversation(t, ConversationOptions{Title: "Stream"})

	var (
		text   strings.Builder
		finals []llmtypes.StreamChunk
		last   llmtypes.StreamChunk
	)
	for chunk, err := range f.orchestrator.SendMessageStream(context.Background(), id, "Who is Grace?", "") {
		if err != nil {
			t.Fatalf("stream failed: %v", err)
		}
		if chunk.IsFinal {
			finals = append(finals, chunk)
		}
		text.WriteString(chunk.Content)
		last = chunk
	}

	if len(finals) != 1 || !last.IsFinal {
		t.Fatalf("expected exactly one final chunk at the end, got %d", len(finals))
	}
	if last.Usage.InputTokens != 17 || last.Usage.OutputTokens != 7 || last.Usage.TotalTokens != 24 {
		t.Errorf("unexpected aggregated usage %+v", last.Usage)
	}
	testHelpers.AssertContains(t, text.String(), "Grace is a rear admiral")

	stored, _ := f.store.Messages(context.Background(), id)
	reply := stored[len(stored)-1]
	if reply.ID != last.MessageID || reply.Content != "Grace is a rear admiral" {
		t.Errorf("final chunk should reference the stored reply, got %+v", reply)
	}
	if text.String() != reply.Content {
		t.Errorf("streamed %q but stored %q", text.String(), reply.Content)
	}
	if len(reply.ToolCalls) != 1 {
		t.Errorf("expected the tool call to be logged, got %+v", reply.ToolCalls)
	}
}

// streamText drains a stream and returns its text and final chunk
func streamText(t *testing.T, f *fixture, id, content string) (string, llmtypes.StreamChunk) {
	t.Helper()
	var (
		text  strings.Builder
		final llmtypes.StreamChunk
	)
	for chunk, err := range f.orchestrator.SendMessageStream(context.Background(), id, content, "") {
		if err != nil {
			t.Fatalf("stream failed: %v", err)
		}
		text.WriteString(chunk.Content)
		if chunk.IsFinal {
			final = chunk
		}
	}
	return text.String(), final
}

func storedReply(t *testing.T, f *fixture, id string) *conversation.Message {
	t.Helper()
	stored, err := f.store.Messages(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return stored[len(stored)-1]
}

func TestSendMessageStream_MaxIterations(t *testing.T) {
	lookup := llmtypes.ToolCall{ID: "c1", Name: "lookup_person", Arguments: map[string]any{"person_id": "grace"}}
	mock := testHelpers.NewMockProvider("mock",
		testHelpers.ToolCallResponse("Still looking", lookup),
		testHelpers.ToolCallResponse("Still looking", lookup),
	)
	f := newFixture(t, fixedProviders{"mock": mock}, Options{MaxIterations: 2})
	id := f.newConversation(t, ConversationOptions{Title: "Capped"})

	text, final := streamText(t, f, id, "Dig deeper")

	reply := storedReply(t, f, id)
	if reply.Content != "Still looking\n\n"+MaxIterationsMarker {
		t.Errorf("unexpected stored reply %q", reply.Content)
	}
	if text != reply.Content {
		t.Errorf("streamed %q but stored %q", text, reply.Content)
	}
	if final.MessageID != reply.ID {
		t.Errorf("final chunk should reference the stored reply")
	}
}

func TestSendMessageStream_ToolErrorMarker(t *testing.T) {
	mock := testHelpers.NewMockProvider("mock",
		testHelpers.ToolCallResponse("", llmtypes.ToolCall{ID: "c1", Name: "no_such_tool"}),
	)
	f := newFixture(t, fixedProviders{"mock": mock}, Options{AbortOnToolError: true})
	id := f.newConversation(t, ConversationOptions{Title: "Abort"})

	text, _ := streamText(t, f, id, "Try it")

	if text != ToolErrorMarker {
		t.Errorf("expected only the marker to stream, got %q", text)
	}
	if reply := storedReply(t, f, id); reply.Content != text {
		t.Errorf("streamed %q but stored %q", text, reply.Content)
	}
}

func TestSendMessageStream_WithholdsSuggestionsBlock(t *testing.T) {
	mock := testHelpers.NewMockProvider("mock",
		testHelpers.TextResponse(testHelpers.SampleSuggestedUpdatesReply(), 4, 6),
	)
	f := newFixture(t, fixedProviders{"mock": mock}, Options{})
	id := f.newConversation(t, ConversationOptions{Title: "Suggest"})

	text, _ := streamText(t, f, id, "Any news?")

	testHelpers.AssertNotContains(t, text, "suggested_updates")
	reply := storedReply(t, f, id)
	if text != reply.Content || len(reply.Suggestions) == 0 {
		t.Errorf("streamed %q, stored %q with %d suggestions", text, reply.Content, len(reply.Suggestions))
	}
}

func TestEmitPrefix(t *testing.T) {
	var got []string
	ok := emitPrefix([]string{"Hé", "llo ", "wor", "ld!"}, "Héllo wo", func(s string) bool {
		got = append(got, s)
		return true
	})
	if !ok || strings.Join(got, "|") != "Hé|llo |wo" {
		t.Errorf("unexpected fragments %q", got)
	}

	calls := 0
	if emitPrefix([]string{"a", "b"}, "ab", func(string) bool { calls++; return false }) || calls != 1 {
		t.Errorf("emit should stop on the first refusal, calls=%d", calls)
	}
}

func TestSendMessageStream_ConsumerStops(t *testing.T) {
	mock := testHelpers.NewMockProvider("mock", testHelpers.TextResponse("one two three four", 1, 1))
	f := newFixture(t, fixedProviders{"mock": mock}, Options{})
	id := f.newConversation(t, ConversationOptions{Title: "Stop"})

	for range f.orchestrator.SendMessageStream(context.Background(), id, "count", "") {
		break
	}

	stored, _ := f.store.Messages(context.Background(), id)
	if len(stored) != 1 {
		t.Errorf("an abandoned stream should not store a reply, got %d messages", len(stored))
	}
}

func TestCreateConversation(t *testing.T) {
	f := newFixture(t, fixedProviders{}, Options{})

	conv, err := f.orchestrator.CreateConversation(context.Background(), ConversationOptions{
		Entity: &EntityRef{Type: crm.EntityOrganization, ID: "org-acme"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if conv.Provider != "mock" || conv.EntityType != "organization" || conv.EntityID != "org-acme" {
		t.Errorf("unexpected conversation %+v", conv)
	}

	_, err = f.orchestrator.CreateConversation(context.Background(), ConversationOptions{
		Entity: &EntityRef{Type: "deal", ID: "d1"},
	})
	if err == nil {
		t.Error("expected invalid entity type to be rejected")
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  \"Acme funding round.\"\nextra", "Acme funding round"},
		{"a" + strings.Repeat("ü", 50), "a" + strings.Repeat("ü", 39)},
	}
	for _, tt := range tests {
		got := cleanTitle(tt.in)
		if got != tt.want || !utf8.ValidString(got) {
			t.Errorf("cleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTrimHistory(t *testing.T) {
	long := strings.Repeat("x", 400)
	history := []llmtypes.Message{
		llmtypes.NewTextMessage(llmtypes.RoleUser, long),
		llmtypes.NewTextMessage(llmtypes.RoleAssistant, long),
		llmtypes.NewTextMessage(llmtypes.RoleUser, "latest"),
	}

	trimmed := trimHistory(history, 120)
	if len(trimmed) != 1 || trimmed[0].Content.String() != "latest" {
		t.Errorf("expected only the latest message, got %d", len(trimmed))
	}
	if got := trimHistory(history, 1000); len(got) != 3 {
		t.Errorf("history within budget should be kept, got %d", len(got))
	}
}
