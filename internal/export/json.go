package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/user/crmassist/internal/conversation"
)

// JSONDocument represents the complete JSON output structure
type JSONDocument struct {
	Metadata Metadata      `json:"metadata"`
	Totals   Totals        `json:"totals"`
	Messages []JSONMessage `json:"messages"`
}

// Metadata describes the exported conversation
type Metadata struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExportedAt time.Time `json:"exported_at"`
	Generator  string    `json:"generator"`
}

type Totals struct {
	Messages    int `json:"messages"`
	TokensIn    int `json:"tokens_in"`
	TokensOut   int `json:"tokens_out"`
	TotalTokens int `json:"total_tokens"`
	ToolCalls   int `json:"tool_calls"`
}

type JSONMessage struct {
	ID          string                         `json:"id"`
	Role        string                         `json:"role"`
	Content     string                         `json:"content"`
	Model       string                         `json:"model,omitempty"`
	TokensIn    int                            `json:"tokens_in,omitempty"`
	TokensOut   int                            `json:"tokens_out,omitempty"`
	ToolCalls   []conversation.ToolCallRecord  `json:"tool_calls,omitempty"`
	Suggestions []conversation.SuggestedUpdate `json:"suggested_updates,omitempty"`
	CreatedAt   time.Time                      `json:"created_at"`
}

// ToJSONDocument converts a transcript into its JSON form
func ToJSONDocument(t *Transcript) JSONDocument {
	conv := t.Conversation
	doc := JSONDocument{
		Metadata: Metadata{
			ID:         conv.ID,
			Title:      t.Title(),
			EntityType: conv.EntityType,
			EntityID:   conv.EntityID,
			Provider:   conv.Provider,
			Model:      conv.Model,
			CreatedAt:  conv.CreatedAt,
			ExportedAt: t.ExportedAt,
			Generator:  "crmassist",
		},
		Totals: Totals{
			Messages:    t.Stats.MessageCount,
			TokensIn:    t.Stats.TokensIn,
			TokensOut:   t.Stats.TokensOut,
			TotalTokens: t.Stats.TotalTokens,
			ToolCalls:   t.Stats.ToolCalls,
		},
		Messages: make([]JSONMessage, 0, len(t.Messages)),
	}

	for _, m := range t.Messages {
		doc.Messages = append(doc.Messages, JSONMessage{
			ID:          m.ID,
			Role:        string(m.Role),
			Content:     m.Content,
			Model:       m.Model,
			TokensIn:    m.TokensIn,
			TokensOut:   m.TokensOut,
			ToolCalls:   m.ToolCalls,
			Suggestions: m.Suggestions,
			CreatedAt:   m.CreatedAt,
		})
	}
	return doc
}

// ExportJSON renders the transcript as indented JSON
func ExportJSON(t *Transcript) ([]byte, error) {
	data, err := json.MarshalIndent(ToJSONDocument(t), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return data, nil
}
