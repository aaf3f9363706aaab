package chat

import (
	"context"
	"strings"

	"github.com/user/crmassist/internal/llmtypes"
	"github.com/user/crmassist/internal/logging"
	"github.com/user/crmassist/internal/privacy"
	"github.com/user/crmassist/internal/prompts"
)

const maxTitleLength = 80

// generateTitle names an untitled conversation after its first exchange.
// Failures are logged and ignored.
func (o *Orchestrator) generateTitle(ctx context.Context, t *turn, reply string, logger *logging.Logger) {
	tmpl, err := o.prompts.RenderTemplate(prompts.Title, map[string]any{
		"UserMessage":      privacy.Redact(t.userText),
		"AssistantMessage": reply,
	})
	if err != nil {
		logger.Warn("Could not render title prompt", logging.Error(err))
		return
	}

	resp, err := t.provider.Chat(ctx, llmtypes.ChatRequest{
		Messages: []llmtypes.Message{
			llmtypes.NewTextMessage(llmtypes.RoleSystem, tmpl.SystemPrompt),
			llmtypes.NewTextMessage(llmtypes.RoleUser, tmpl.UserPrompt),
		},
		Model:     t.model,
		MaxTokens: 32,
	})
	if err != nil {
		logger.Warn("Title generation failed", logging.Error(err))
		return
	}

	title := cleanTitle(resp.Content)
	if title == "" {
		return
	}
	if err := o.store.UpdateTitle(ctx, t.conv.ID, title); err != nil {
		logger.Warn("Could not store conversation title", logging.Error(err))
		return
	}
	t.conv.Title = title
	logger.Debug("Conversation titled", logging.String("title", title))
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'` ")
	s = strings.TrimRight(s, ".!")
	if len(s) > maxTitleLength {
		s = strings.TrimSpace(llmtypes.ClipBytes(s, maxTitleLength))
	}
	return s
}
