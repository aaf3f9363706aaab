// Package chat runs conversation turns: it builds the provider context, drives
// the bounded tool loop and persists the outcome.
package chat

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/user/crmassist/internal/contextbuilder"
	"github.com/user/crmassist/internal/conversation"
	"github.com/user/crmassist/internal/crm"
	"github.com/user/crmassist/internal/errors"
	"github.com/user/crmassist/internal/llm"
	"github.com/user/crmassist/internal/llmtypes"
	"github.com/user/crmassist/internal/logging"
	"github.com/user/crmassist/internal/prompts"
	"github.com/user/crmassist/internal/tools"
)

// Markers appended to a reply when the loop ends without a final answer
const (
	MaxIterationsMarker = "[Maximum iterations reached]"
	ToolErrorMarker     = "[Stopped after a failed tool call]"
)

const (
	defaultMaxIterations      = 10
	defaultHistoryTokenBudget = 100000
)

// ProviderSource hands out provider adapters by name; *llm.Registry implements it
type ProviderSource interface {
	Get(ctx context.Context, name string) (llm.Provider, error)
	DefaultName() string
}

// Options tunes the orchestrator
type Options struct {
	MaxIterations       int
	Temperature         float64
	MaxTokens           int // 0 means the adapter default
	MaxToolResultTokens int
	HistoryTokenBudget  int
	AbortOnToolError    bool
	AutoTitle           bool
}

// Dependencies are the collaborators an Orchestrator needs
type Dependencies struct {
	Providers ProviderSource
	Store     conversation.Store
	Context   *contextbuilder.Builder
	Tools     *tools.Registry
	Executor  *tools.Executor
	Prompts   *prompts.Manager
	Logger    *logging.Logger
}

// EntityRef scopes a conversation to one CRM record
type EntityRef struct {
	Type crm.EntityType
	ID   string
}

// ConversationOptions describes a new conversation
type ConversationOptions struct {
	Title    string
	Entity   *EntityRef
	Provider string
	Model    string
}

// Orchestrator runs conversation turns. It holds no per-conversation state
// and is safe for concurrent use; turns of one conversation are serialized.
type Orchestrator struct {
	providers ProviderSource
	store     conversation.Store
	contexts  *contextbuilder.Builder
	tools     *tools.Registry
	executor  *tools.Executor
	framer    *tools.Framer
	prompts   *prompts.Manager
	opts      Options
	logger    *logging.Logger
	locks     *keyedMutex
}

// NewOrchestrator wires an orchestrator from its dependencies
func NewOrchestrator(deps Dependencies, opts Options) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	if opts.HistoryTokenBudget <= 0 {
		opts.HistoryTokenBudget = defaultHistoryTokenBudget
	}
	pm := deps.Prompts
	if pm == nil {
		pm = prompts.NewDefaultManager()
	}
	registry := deps.Tools
	if registry == nil {
		registry = tools.NewRegistry()
	}
	executor := deps.Executor
	if executor == nil {
		executor = tools.NewExecutor(registry, nil, logger)
	}

	return &Orchestrator{
		providers: deps.Providers,
		store:     deps.Store,
		contexts:  deps.Context,
		tools:     registry,
		executor:  executor,
		framer:    tools.NewFramer(opts.MaxToolResultTokens),
		prompts:   pm,
		opts:      opts,
		logger:    logger.Named("chat"),
		locks:     newKeyedMutex(),
	}
}

// CreateConversation starts a conversation. An empty provider selects the
// registry default; the model is resolved on every turn.
func (o *Orchestrator) CreateConversation(ctx context.Context, opts ConversationOptions) (*conversation.Conversation, error) {
	conv := &conversation.Conversation{
		Title:    strings.TrimSpace(opts.Title),
		Provider: opts.Provider,
		Model:    opts.Model,
	}
	if conv.Provider == "" {
		conv.Provider = o.providers.DefaultName()
	}
	if opts.Entity != nil {
		if !crm.ValidType(opts.Entity.Type) || opts.Entity.ID == "" {
			return nil, errors.NewError(fmt.Sprintf("invalid conversation entity %q/%q", opts.Entity.Type, opts.Entity.ID), errors.ExitValidationError)
		}
		conv.EntityType = string(opts.Entity.Type)
		conv.EntityID = opts.Entity.ID
	}

	if err := o.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	o.logger.Info("Conversation created",
		logging.String("conversation_id", conv.ID),
		logging.String("provider", conv.Provider),
		logging.String("entity_type", conv.EntityType),
	)
	return conv, nil
}

// GetConversationStats returns message and token totals for a conversation
func (o *Orchestrator) GetConversationStats(ctx context.Context, conversationID string) (conversation.Stats, error) {
	return o.store.Stats(ctx, conversationID)
}

// SendMessage runs one turn and returns the stored assistant message
func (o *Orchestrator) SendMessage(ctx context.Context, conversationID, content, model string) (*conversation.Message, error) {
	unlock := o.locks.Lock(conversationID)
	defer unlock()

	t, err := o.startTurn(ctx, conversationID, content, model)
	if err != nil {
		return nil, err
	}
	return o.runTurn(ctx, t, t.provider.Chat)
}

// SendMessageStream runs one turn, yielding the reply as the provider's
// fragments. An iteration's text is held until its final chunk shows no tool
// calls, and the suggestions block is withheld, so the concatenated stream
// equals the stored reply, markers included. Exactly one final chunk is
// yielded, after the reply has been stored; it carries the aggregated usage
// and the stored message id.
func (o *Orchestrator) SendMessageStream(ctx context.Context, conversationID, content, model string) iter.Seq2[llmtypes.StreamChunk, error] {
	return func(yield func(llmtypes.StreamChunk, error) bool) {
		unlock := o.locks.Lock(conversationID)
		defer unlock()

		t, err := o.startTurn(ctx, conversationID, content, model)
		if err != nil {
			yield(llmtypes.StreamChunk{}, err)
			return
		}

		var streamed strings.Builder
		stopped := false
		emit := func(fragment string) bool {
			if !yield(llmtypes.StreamChunk{Content: fragment}, nil) {
				stopped = true
				return false
			}
			streamed.WriteString(fragment)
			return true
		}

		call := func(ctx context.Context, req llmtypes.ChatRequest) (*llmtypes.Response, error) {
			var fragments []string
			resp, err := consumeStream(ctx, t.provider, req, func(fragment string) bool {
				fragments = append(fragments, fragment)
				return true
			})
			if err != nil || resp.HasToolCalls() {
				return resp, err
			}
			if !emitPrefix(fragments, visibleText(resp.Content), emit) {
				return nil, context.Canceled
			}
			return resp, nil
		}

		msg, err := o.runTurn(ctx, t, call)
		if stopped {
			return
		}
		if err != nil {
			yield(llmtypes.StreamChunk{}, err)
			return
		}
		if rest, ok := strings.CutPrefix(msg.Content, streamed.String()); ok && rest != "" {
			if !yield(llmtypes.StreamChunk{Content: rest}, nil) {
				return
			}
		}
		yield(llmtypes.StreamChunk{
			IsFinal:      true,
			Usage:        llmtypes.NewUsage(msg.TokensIn, msg.TokensOut),
			FinishReason: t.finishReason,
			MessageID:    msg.ID,
		}, nil)
	}
}

// emitPrefix forwards fragments while together they spell a prefix of want,
// cutting the first diverging fragment at a rune boundary. It returns false
// when emit asks to stop.
func emitPrefix(fragments []string, want string, emit func(string) bool) bool {
	sent := 0
	for _, f := range fragments {
		rest := want[sent:]
		n := 0
		for n < len(f) && n < len(rest) && f[n] == rest[n] {
			n++
		}
		for n > 0 && n < len(f) && !utf8.RuneStart(f[n]) {
			n--
		}
		if n == 0 {
			break
		}
		if !emit(f[:n]) {
			return false
		}
		sent += n
		if n < len(f) {
			break
		}
	}
	return true
}

// turn is the state of one SendMessage call
type turn struct {
	conv         *conversation.Conversation
	provider     llm.Provider
	model        string
	userText     string
	messages     []llmtypes.Message
	executor     *tools.Executor
	finishReason string
}

type chatFunc func(ctx context.Context, req llmtypes.ChatRequest) (*llmtypes.Response, error)

// startTurn stores the user message and prepares the provider context
func (o *Orchestrator) startTurn(ctx context.Context, conversationID, content, model string) (*turn, error) {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if err := o.store.AppendMessage(ctx, &conversation.Message{
		ConversationID: conversationID,
		Role:           llmtypes.RoleUser,
		Content:        content,
	}); err != nil {
		return nil, err
	}

	provider, err := o.providers.Get(ctx, conv.Provider)
	if err != nil {
		return nil, err
	}

	requested := model
	if requested == "" {
		requested = conv.Model
	}
	resolved := o.resolveModel(provider, requested, conversationID)

	stored, err := o.store.Messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history := trimHistory(historyMessages(stored), o.opts.HistoryTokenBudget)

	var personID, orgID string
	switch crm.EntityType(conv.EntityType) {
	case crm.EntityPerson:
		personID = conv.EntityID
	case crm.EntityOrganization:
		orgID = conv.EntityID
	}
	messages, err := o.contexts.BuildConversationContext(ctx, history, personID, orgID)
	if err != nil {
		return nil, err
	}

	return &turn{
		conv:     conv,
		provider: provider,
		model:    resolved,
		userText: content,
		messages: messages,
		executor: o.executor.ForConversation(conversationID),
	}, nil
}

// resolveModel maps the requested model through the provider's aliases and
// falls back to the provider default when it is not advertised
func (o *Orchestrator) resolveModel(provider llm.Provider, requested, conversationID string) string {
	resolved := provider.ResolveModel(requested)
	if slices.Contains(provider.AvailableModels(), resolved) {
		return resolved
	}
	fallback := provider.DefaultModel()
	o.logger.Warn("Requested model not available, using provider default",
		logging.String("conversation_id", conversationID),
		logging.String("provider", provider.Name()),
		logging.String("requested", requested),
		logging.String("model", fallback),
	)
	return fallback
}

// runTurn drives the tool loop and persists the reply
func (o *Orchestrator) runTurn(ctx context.Context, t *turn, call chatFunc) (*conversation.Message, error) {
	logger := o.logger.With(
		logging.String("conversation_id", t.conv.ID),
		logging.String("provider", t.provider.Name()),
		logging.String("model", t.model),
	)
	definitions := o.tools.Definitions()

	var (
		usage   llmtypes.Usage
		records []conversation.ToolCallRecord
		final   string
		partial string
		marker  string
	)

	for iteration := 1; ; iteration++ {
		if iteration > o.opts.MaxIterations {
			logger.Warn("Maximum iterations reached, ending turn", logging.Int("iterations", o.opts.MaxIterations))
			marker = MaxIterationsMarker
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.Debug("Calling provider",
			logging.Int("iteration", iteration),
			logging.Int("messages", len(t.messages)),
			logging.Int("tools", len(definitions)),
		)
		resp, err := call(ctx, llmtypes.ChatRequest{
			Messages:    t.messages,
			Model:       t.model,
			Temperature: o.opts.Temperature,
			MaxTokens:   o.opts.MaxTokens,
			Tools:       definitions,
		})
		if err != nil {
			logger.Error("Provider call failed", logging.Int("iteration", iteration), logging.Error(err))
			return nil, err
		}

		usage = usage.Add(resp.Usage)
		t.finishReason = resp.FinishReason
		logger.Debug("Provider responded",
			logging.Int("iteration", iteration),
			logging.Int("tokens_in", resp.Usage.InputTokens),
			logging.Int("tokens_out", resp.Usage.OutputTokens),
			logging.Int("tool_calls", len(resp.ToolCalls)),
		)

		if !resp.HasToolCalls() {
			final = resp.Content
			break
		}
		if resp.Content != "" {
			partial = resp.Content
		}

		t.messages = append(t.messages, o.framer.FrameAssistantTurn(resp.Content, resp.ToolCalls))
		result := t.executor.ExecuteAll(ctx, resp.ToolCalls)
		t.messages = append(t.messages, o.framer.FrameResults(t.provider.Name(), result)...)
		records = append(records, toolCallRecords(result, iteration)...)

		if result.HasErrors() && o.opts.AbortOnToolError {
			logger.Warn("Tool call failed, ending turn", logging.Int("iteration", iteration))
			marker = ToolErrorMarker
			break
		}
	}

	if marker != "" {
		final = strings.TrimSpace(partial + "\n\n" + marker)
	}

	body, suggestions := o.extractSuggestions(final, logger)
	reply := &conversation.Message{
		ConversationID: t.conv.ID,
		Role:           llmtypes.RoleAssistant,
		Content:        body,
		TokensIn:       usage.InputTokens,
		TokensOut:      usage.OutputTokens,
		Model:          t.model,
		ToolCalls:      records,
		Suggestions:    suggestions,
	}
	if err := o.store.AppendMessage(ctx, reply); err != nil {
		return nil, err
	}

	logger.Info("Turn completed",
		logging.Int("tokens_in", usage.InputTokens),
		logging.Int("tokens_out", usage.OutputTokens),
		logging.Int("tool_calls", len(records)),
		logging.Int("suggestions", len(suggestions)),
	)

	if t.conv.Title == "" && o.opts.AutoTitle {
		o.generateTitle(ctx, t, body, logger)
	}
	return reply, nil
}

func toolCallRecords(result tools.ExecutionResult, iteration int) []conversation.ToolCallRecord {
	records := make([]conversation.ToolCallRecord, 0, len(result.Executions))
	for _, exec := range result.Executions {
		records = append(records, conversation.ToolCallRecord{
			ID:        exec.Call.ID,
			Name:      exec.Call.Name,
			Arguments: exec.Call.Arguments,
			Status:    string(exec.Result.Status),
			Error:     exec.Result.Error,
			Iteration: iteration,
		})
	}
	return records
}

// consumeStream drains one provider stream into a Response, forwarding text
// fragments. The provider's final chunk is kept internal.
func consumeStream(ctx context.Context, provider llm.Provider, req llmtypes.ChatRequest, forward func(string) bool) (*llmtypes.Response, error) {
	var (
		sb    strings.Builder
		final *llmtypes.StreamChunk
	)
	for chunk, err := range provider.Stream(ctx, req) {
		if err != nil {
			return nil, err
		}
		if chunk.Content != "" {
			sb.WriteString(chunk.Content)
			if !forward(chunk.Content) {
				return nil, context.Canceled
			}
		}
		if chunk.IsFinal {
			c := chunk
			final = &c
		}
	}
	if final == nil {
		return nil, errors.NewProviderError(provider.Name(), 0, "stream ended without a final chunk", nil)
	}
	return &llmtypes.Response{
		Content:      sb.String(),
		Model:        req.Model,
		Usage:        llmtypes.NewUsage(final.Usage.InputTokens, final.Usage.OutputTokens),
		FinishReason: final.FinishReason,
		ToolCalls:    final.ToolCalls,
	}, nil
}
