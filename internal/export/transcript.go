// Package export renders stored conversations as standalone JSON or HTML
// transcripts.
package export

import (
	"context"
	"time"

	"github.com/user/crmassist/internal/conversation"
)

// Transcript is a conversation with its messages and totals
type Transcript struct {
	Conversation *conversation.Conversation
	Messages     []*conversation.Message
	Stats        conversation.Stats
	ExportedAt   time.Time
}

// Load reads a conversation and its messages from store
func Load(ctx context.Context, store conversation.Store, conversationID string) (*Transcript, error) {
	conv, err := store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := store.Messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	stats, err := store.Stats(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &Transcript{
		Conversation: conv,
		Messages:     msgs,
		Stats:        stats,
		ExportedAt:   time.Now().UTC(),
	}, nil
}

// Title returns the conversation title or a fallback
func (t *Transcript) Title() string {
	if t.Conversation.Title != "" {
		return t.Conversation.Title
	}
	return "Conversation " + t.Conversation.ID
}
