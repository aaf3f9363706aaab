package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/user/crmassist/internal/config"
	"github.com/user/crmassist/internal/conversation"
	"github.com/user/crmassist/internal/logging"
)

const defaultListLimit = 20

// ConversationsHandler lists stored conversations and reports their usage
type ConversationsHandler struct {
	*BaseHandler
	assistant Assistant
	store     conversation.Store
}

func NewConversationsHandler(cfg *config.Config, assistant Assistant, store conversation.Store, logger *logging.Logger) *ConversationsHandler {
	return &ConversationsHandler{
		BaseHandler: NewBaseHandler(cfg, logger),
		assistant:   assistant,
		store:       store,
	}
}

// List returns the most recently updated conversations
func (h *ConversationsHandler) List(ctx context.Context, limit int) ([]*conversation.Conversation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return h.store.ListConversations(ctx, limit)
}

// ConversationReport pairs a conversation with its totals
type ConversationReport struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Entity       string `json:"entity,omitempty"`
	Provider     string `json:"provider"`
	MessageCount int    `json:"message_count"`
	TokensIn     int    `json:"tokens_in"`
	TokensOut    int    `json:"tokens_out"`
	TotalTokens  int    `json:"total_tokens"`
	ToolCalls    int    `json:"tool_calls"`
}

// Stats loads the totals of one conversation
func (h *ConversationsHandler) Stats(ctx context.Context, conversationID string) (*ConversationReport, error) {
	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	stats, err := h.assistant.GetConversationStats(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	report := &ConversationReport{
		ID:           conv.ID,
		Title:        conv.Title,
		Provider:     conv.Provider,
		MessageCount: stats.MessageCount,
		TokensIn:     stats.TokensIn,
		TokensOut:    stats.TokensOut,
		TotalTokens:  stats.TotalTokens,
		ToolCalls:    stats.ToolCalls,
	}
	if conv.EntityType != "" {
		report.Entity = conv.EntityType + "/" + conv.EntityID
	}
	return report, nil
}

func (h *ConversationsHandler) FormatList(convs []*conversation.Conversation) string {
	if len(convs) == 0 {
		return "No conversations yet.\n"
	}

	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tENTITY\tPROVIDER\tUPDATED")
	for _, c := range convs {
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		entity := "-"
		if c.EntityType != "" {
			entity = c.EntityType + "/" + c.EntityID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, title, entity, c.Provider, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
	return sb.String()
}

func (h *ConversationsHandler) FormatStats(report *ConversationReport) string {
	var sb strings.Builder
	title := report.Title
	if title == "" {
		title = "(untitled)"
	}
	sb.WriteString(fmt.Sprintf("Conversation: %s\n", title))
	sb.WriteString(fmt.Sprintf("  ID:        %s\n", report.ID))
	if report.Entity != "" {
		sb.WriteString(fmt.Sprintf("  Entity:    %s\n", report.Entity))
	}
	sb.WriteString(fmt.Sprintf("  Provider:  %s\n", report.Provider))
	sb.WriteString(fmt.Sprintf("  Messages:  %d\n", report.MessageCount))
	sb.WriteString(fmt.Sprintf("  Tokens:    %d in / %d out / %d total\n", report.TokensIn, report.TokensOut, report.TotalTokens))
	sb.WriteString(fmt.Sprintf("  Tool calls: %d\n", report.ToolCalls))
	return sb.String()
}

func (h *ConversationsHandler) FormatJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal: %w", err)
	}
	return string(data), nil
}
