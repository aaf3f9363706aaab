package handlers

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/user/crmassist/internal/chat"
	"github.com/user/crmassist/internal/config"
	"github.com/user/crmassist/internal/contextbuilder"
	"github.com/user/crmassist/internal/conversation"
	"github.com/user/crmassist/internal/crm"
	"github.com/user/crmassist/internal/llm"
	"github.com/user/crmassist/internal/llmtypes"
	"github.com/user/crmassist/internal/logging"
	"github.com/user/crmassist/internal/prompts"
	testHelpers "github.com/user/crmassist/internal/testing"
	"github.com/user/crmassist/internal/tools"
)

type chatFixture struct {
	handler  *ChatHandler
	store    *conversation.MemoryStore
	provider *testHelpers.MockProvider
	out      *bytes.Buffer
}

func newChatFixture(t *testing.T, provider *testHelpers.MockProvider) *chatFixture {
	t.Helper()

	data := crm.NewMemoryStore(nil)
	if err := data.LoadSeedData([]byte(testHelpers.SampleCRMSeed())); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	registry := tools.NewRegistry()
	if err := registry.RegisterAll(tools.CRMTools()...); err != nil {
		t.Fatal(err)
	}

	logger := logging.NewNopLogger()
	pm := prompts.NewDefaultManager()
	store := conversation.NewMemoryStore()
	providers := stubProviders{
		names:    []string{"mock"},
		def:      "mock",
		adapters: map[string]llm.Provider{"mock": provider},
	}
	orchestrator := chat.NewOrchestrator(chat.Dependencies{
		Providers: providers,
		Store:     store,
		Context:   contextbuilder.NewBuilder(data, pm, contextbuilder.Config{Policy: contextbuilder.DefaultPolicy()}, logger),
		Tools:     registry,
		Executor:  tools.NewExecutor(registry, data, logger),
		Prompts:   pm,
		Logger:    logger,
	}, chat.Options{})

	out := &bytes.Buffer{}
	handler := NewChatHandler(&config.Config{}, orchestrator, store, logger)
	handler.Out = out
	return &chatFixture{handler: handler, store: store, provider: provider, out: out}
}

func TestChatHandler_OneShot(t *testing.T) {
	f := newChatFixture(t, testHelpers.NewMockProvider("mock",
		testHelpers.TextResponse(testHelpers.SampleSuggestedUpdatesReply(), 12, 8),
	))

	id, err := f.handler.Handle(context.Background(), ChatOptions{
		EntityType: "person",
		EntityID:   "abc",
		Message:    "Any news about Ada?",
	}, nil)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	conv, err := f.store.GetConversation(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if conv.EntityType != "person" || conv.EntityID != "abc" {
		t.Errorf("expected person-scoped conversation, got %+v", conv)
	}

	out := f.out.String()
	testHelpers.AssertContains(t, out, "Ada recently moved to a new role.")
	testHelpers.AssertContains(t, out, `person abc: title = "CTO" (confidence 0.80)`)
	testHelpers.AssertContains(t, out, "[tokens in 12, out 8, tools 0]")
	testHelpers.AssertNotContains(t, out, "suggested_updates")
}

func TestChatHandler_StreamingShowsStoredSuggestions(t *testing.T) {
	f := newChatFixture(t, testHelpers.NewMockProvider("mock",
		testHelpers.TextResponse(testHelpers.SampleSuggestedUpdatesReply(), 4, 6),
	))

	_, err := f.handler.Handle(context.Background(), ChatOptions{Message: "news?", Stream: true}, nil)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	out := f.out.String()
	testHelpers.AssertContains(t, out, "Ada recently moved")
	testHelpers.AssertContains(t, out, "Suggested CRM updates:")
	testHelpers.AssertContains(t, out, "[tokens in 4, out 6, tools 0]")
	testHelpers.AssertNotContains(t, out, "suggested_updates")
}

func TestChatHandler_StreamingShowsIterationCap(t *testing.T) {
	lookup := llmtypes.ToolCall{ID: "c1", Name: "lookup_person", Arguments: map[string]any{"person_id": "abc"}}
	f := newChatFixture(t, testHelpers.NewMockProvider("mock", testHelpers.ToolCallResponse("Looking", lookup)))

	if _, err := f.handler.Handle(context.Background(), ChatOptions{Message: "dig", Stream: true}, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	out := f.out.String()
	testHelpers.AssertContains(t, out, "Looking\n\n"+chat.MaxIterationsMarker)
	if strings.Count(out, "Looking") != 1 {
		t.Errorf("tool-bearing iterations should not be streamed:\n%s", out)
	}
}

func TestChatHandler_InteractiveSession(t *testing.T) {
	provider := testHelpers.NewMockProvider("mock",
		testHelpers.TextResponse("First answer", 1, 1),
		testHelpers.TextResponse("Second answer", 1, 1),
	)
	f := newChatFixture(t, provider)

	in := strings.NewReader("hello\n\nagain\n/quit\nignored\n")
	id, err := f.handler.Handle(context.Background(), ChatOptions{Title: "REPL"}, in)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if provider.CallCount() != 2 {
		t.Errorf("expected 2 provider calls, got %d", provider.CallCount())
	}
	out := f.out.String()
	testHelpers.AssertContains(t, out, "First answer")
	testHelpers.AssertContains(t, out, "Second answer")

	msgs, err := f.store.Messages(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 {
		t.Errorf("expected 4 stored messages, got %d", len(msgs))
	}
}

func TestChatHandler_InteractiveKeepsGoingAfterProviderError(t *testing.T) {
	provider := testHelpers.NewMockProvider("mock")
	f := newChatFixture(t, provider)

	_, err := f.handler.Handle(context.Background(), ChatOptions{}, strings.NewReader("one\ntwo\n"))
	if err != nil {
		t.Fatalf("expected session to survive failed turns, got %v", err)
	}
	if provider.CallCount() != 2 {
		t.Errorf("expected both turns to reach the provider, got %d", provider.CallCount())
	}
	testHelpers.AssertContains(t, f.out.String(), "error: ")
}

func TestChatHandler_InvalidEntity(t *testing.T) {
	f := newChatFixture(t, testHelpers.NewMockProvider("mock", testHelpers.TextResponse("x", 1, 1)))

	_, err := f.handler.Handle(context.Background(), ChatOptions{EntityType: "deal", EntityID: "d1", Message: "hi"}, nil)
	if err == nil {
		t.Fatal("expected an error for an unknown entity type")
	}
}
