package chat

import (
	"github.com/user/crmassist/internal/conversation"
	"github.com/user/crmassist/internal/llm"
	"github.com/user/crmassist/internal/llmtypes"
)

// historyMessages converts stored user and assistant messages into provider
// messages. Tool traffic of earlier turns is not replayed.
func historyMessages(stored []*conversation.Message) []llmtypes.Message {
	out := make([]llmtypes.Message, 0, len(stored))
	for _, m := range stored {
		if m.Role != llmtypes.RoleUser && m.Role != llmtypes.RoleAssistant {
			continue
		}
		if m.Content == "" {
			continue
		}
		out = append(out, llmtypes.NewTextMessage(m.Role, m.Content))
	}
	return out
}

func estimateHistoryTokens(history []llmtypes.Message) int {
	total := 0
	for _, m := range history {
		total += llm.EstimateTokens(m.Content.String())
	}
	return total
}

// trimHistory drops the oldest messages until the history fits maxTokens.
// The latest message is always kept and the history never starts with an
// assistant message.
func trimHistory(history []llmtypes.Message, maxTokens int) []llmtypes.Message {
	if len(history) == 0 || estimateHistoryTokens(history) <= maxTokens {
		return history
	}

	trimmed := history
	for len(trimmed) > 1 && estimateHistoryTokens(trimmed) > maxTokens {
		trimmed = trimmed[1:]
	}
	for len(trimmed) > 1 && trimmed[0].Role == llmtypes.RoleAssistant {
		trimmed = trimmed[1:]
	}
	return trimmed
}
