package handlers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/user/crmassist/internal/chat"
	"github.com/user/crmassist/internal/config"
	"github.com/user/crmassist/internal/conversation"
	"github.com/user/crmassist/internal/crm"
	"github.com/user/crmassist/internal/llmtypes"
	"github.com/user/crmassist/internal/logging"
)

const quitCommand = "/quit"

// Assistant runs conversation turns; *chat.Orchestrator implements it
type Assistant interface {
	CreateConversation(ctx context.Context, opts chat.ConversationOptions) (*conversation.Conversation, error)
	SendMessage(ctx context.Context, conversationID, content, model string) (*conversation.Message, error)
	SendMessageStream(ctx context.Context, conversationID, content, model string) iter.Seq2[llmtypes.StreamChunk, error]
	GetConversationStats(ctx context.Context, conversationID string) (conversation.Stats, error)
}

// ChatOptions selects or creates the conversation and the input mode
type ChatOptions struct {
	ConversationID string
	Title          string
	EntityType     string
	EntityID       string
	Provider       string
	Model          string
	Stream         bool
	Message        string // empty reads turns from the input until EOF or /quit
}

// ChatHandler drives one-shot or interactive chat sessions
type ChatHandler struct {
	*BaseHandler
	assistant Assistant
	store     conversation.Store
}

func NewChatHandler(cfg *config.Config, assistant Assistant, store conversation.Store, logger *logging.Logger) *ChatHandler {
	return &ChatHandler{
		BaseHandler: NewBaseHandler(cfg, logger),
		assistant:   assistant,
		store:       store,
	}
}

// Handle runs the session and returns the conversation id it used
func (h *ChatHandler) Handle(ctx context.Context, opts ChatOptions, in io.Reader) (string, error) {
	conversationID, err := h.resolveConversation(ctx, opts)
	if err != nil {
		return "", err
	}

	if opts.Message != "" {
		return conversationID, h.turn(ctx, conversationID, opts.Message, opts)
	}

	fmt.Fprintf(h.Out, "Conversation %s (type %s to exit)\n", conversationID, quitCommand)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(h.Out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == quitCommand {
			break
		}
		if err := h.turn(ctx, conversationID, line, opts); err != nil {
			// Provider failures end the turn, not the session
			if ctx.Err() != nil {
				return conversationID, err
			}
			h.Logger.ForConversation(conversationID).Warn("Turn failed", logging.Error(err))
			fmt.Fprintf(h.Out, "error: %v\n", err)
		}
	}
	fmt.Fprintln(h.Out)
	return conversationID, scanner.Err()
}

func (h *ChatHandler) resolveConversation(ctx context.Context, opts ChatOptions) (string, error) {
	if opts.ConversationID != "" {
		return opts.ConversationID, nil
	}

	convOpts := chat.ConversationOptions{
		Title:    opts.Title,
		Provider: opts.Provider,
		Model:    opts.Model,
	}
	if opts.EntityType != "" || opts.EntityID != "" {
		convOpts.Entity = &chat.EntityRef{Type: crm.EntityType(opts.EntityType), ID: opts.EntityID}
	}

	conv, err := h.assistant.CreateConversation(ctx, convOpts)
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

func (h *ChatHandler) turn(ctx context.Context, conversationID, content string, opts ChatOptions) error {
	if !opts.Stream {
		reply, err := h.assistant.SendMessage(ctx, conversationID, content, opts.Model)
		if err != nil {
			return err
		}
		fmt.Fprintln(h.Out, reply.Content)
		h.printFooter(reply)
		return nil
	}

	var final llmtypes.StreamChunk
	for chunk, err := range h.assistant.SendMessageStream(ctx, conversationID, content, opts.Model) {
		if err != nil {
			fmt.Fprintln(h.Out)
			return err
		}
		if chunk.IsFinal {
			final = chunk
			continue
		}
		fmt.Fprint(h.Out, chunk.Content)
	}
	fmt.Fprintln(h.Out)

	reply := h.storedReply(ctx, conversationID, final.MessageID)
	if reply == nil {
		reply = &conversation.Message{TokensIn: final.Usage.InputTokens, TokensOut: final.Usage.OutputTokens}
	}
	h.printFooter(reply)
	return nil
}

// storedReply loads the streamed message back so its suggestions can be shown
func (h *ChatHandler) storedReply(ctx context.Context, conversationID, messageID string) *conversation.Message {
	if h.store == nil || messageID == "" {
		return nil
	}
	msgs, err := h.store.Messages(ctx, conversationID)
	if err != nil {
		h.Logger.Debug("Failed to reload streamed reply", logging.Error(err))
		return nil
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == messageID {
			return msgs[i]
		}
	}
	return nil
}

func (h *ChatHandler) printFooter(reply *conversation.Message) {
	if len(reply.Suggestions) > 0 {
		fmt.Fprintln(h.Out, "\nSuggested CRM updates:")
		for _, s := range reply.Suggestions {
			line := fmt.Sprintf("  - %s %s: %s = %q", s.EntityType, s.EntityID, s.Field, s.Value)
			if s.Confidence > 0 {
				line += fmt.Sprintf(" (confidence %.2f)", s.Confidence)
			}
			if s.Source != "" {
				line += " [" + s.Source + "]"
			}
			fmt.Fprintln(h.Out, line)
		}
	}
	fmt.Fprintf(h.Out, "[tokens in %d, out %d, tools %d]\n", reply.TokensIn, reply.TokensOut, len(reply.ToolCalls))
}
