package chat

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/user/crmassist/internal/conversation"
	"github.com/user/crmassist/internal/crm"
	"github.com/user/crmassist/internal/logging"
)

var fencedJSON = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")

type suggestionsPayload struct {
	SuggestedUpdates []conversation.SuggestedUpdate `json:"suggested_updates"`
}

// extractSuggestions pulls the suggested_updates block out of a reply.
// The block is removed from the returned text only when it parses; any
// failure is logged and leaves the reply untouched.
func (o *Orchestrator) extractSuggestions(text string, logger *logging.Logger) (string, []conversation.SuggestedUpdate) {
	body, updates, err := cutSuggestions(text)
	if err != nil {
		logger.Warn("Could not parse suggested updates", logging.Error(err))
		return text, nil
	}

	var valid []conversation.SuggestedUpdate
	for _, s := range updates {
		if !crm.ValidType(crm.EntityType(s.EntityType)) || s.EntityID == "" || s.Field == "" || s.Value == "" {
			logger.Warn("Dropping malformed suggested update",
				logging.String("entity_type", s.EntityType),
				logging.String("field", s.Field),
			)
			continue
		}
		s.Confidence = min(max(s.Confidence, 0), 1)
		valid = append(valid, s)
	}
	return body, valid
}

// cutSuggestions removes the first fenced JSON block mentioning
// suggested_updates. Without such a block text is returned as is.
func cutSuggestions(text string) (string, []conversation.SuggestedUpdate, error) {
	for _, loc := range fencedJSON.FindAllStringSubmatchIndex(text, -1) {
		raw := text[loc[2]:loc[3]]
		if !strings.Contains(raw, "suggested_updates") {
			continue
		}
		var payload suggestionsPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return text, nil, err
		}
		return strings.TrimSpace(text[:loc[0]] + text[loc[1]:]), payload.SuggestedUpdates, nil
	}
	return text, nil, nil
}

// visibleText is the part of a reply shown to the user
func visibleText(text string) string {
	body, _, err := cutSuggestions(text)
	if err != nil {
		return text
	}
	return body
}
