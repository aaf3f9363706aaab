// Package conversation persists conversations and their messages. The
// orchestrator consumes the Store interface; memory, SQLite and Postgres
// implementations are provided.
package conversation

import (
	"context"
	"time"

	"github.com/user/crmassist/internal/llmtypes"
)

// Conversation is a chat thread, optionally scoped to a CRM entity
type Conversation struct {
	ID         string
	Title      string
	EntityType string
	EntityID   string
	Provider   string
	Model      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ToolCallRecord is one entry of the flattened tool-call audit log
type ToolCallRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Iteration int            `json:"iteration"`
}

// SuggestedUpdate is a CRM field change proposed by the assistant
type SuggestedUpdate struct {
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
	Source     string  `json:"source,omitempty"`
}

// Message is a stored conversation message
type Message struct {
	ID             string
	ConversationID string
	Role           llmtypes.Role
	Content        string
	TokensIn       int
	TokensOut      int
	Model          string
	ToolCalls      []ToolCallRecord
	Suggestions    []SuggestedUpdate
	CreatedAt      time.Time
}

// Stats aggregates a conversation's messages
type Stats struct {
	MessageCount int
	TokensIn     int
	TokensOut    int
	TotalTokens  int
	ToolCalls    int
}

// Store persists conversations. Implementations are safe for concurrent use.
// Lookups of an unknown conversation return *errors.ConversationNotFoundError.
type Store interface {
	CreateConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateTitle(ctx context.Context, id, title string) error
	ListConversations(ctx context.Context, limit int) ([]*Conversation, error)
	AppendMessage(ctx context.Context, m *Message) error
	Messages(ctx context.Context, conversationID string) ([]*Message, error)
	Stats(ctx context.Context, conversationID string) (Stats, error)
	Close() error
}

// statsOf folds messages into Stats
func statsOf(msgs []*Message) Stats {
	var s Stats
	for _, m := range msgs {
		s.MessageCount++
		s.TokensIn += m.TokensIn
		s.TokensOut += m.TokensOut
		s.ToolCalls += len(m.ToolCalls)
	}
	s.TotalTokens = s.TokensIn + s.TokensOut
	return s
}
