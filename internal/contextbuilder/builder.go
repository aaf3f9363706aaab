// Package contextbuilder assembles the system prompt and entity-scoped context
// sent to LLM providers. Everything it emits has passed the privacy filter.
package contextbuilder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/user/crmassist/internal/crm"
	"github.com/user/crmassist/internal/llmtypes"
	"github.com/user/crmassist/internal/logging"
	"github.com/user/crmassist/internal/privacy"
	"github.com/user/crmassist/internal/prompts"
)

// TruncationMarker is appended when entity context exceeds its budget
const TruncationMarker = "..."

// Policy controls which optional entity data may be sent to a provider.
// Contact fields (see crm.IsContactField) are never sent regardless of policy.
type Policy struct {
	AllowNotes    bool
	AllowTags     bool
	AllowLinkedIn bool
}

// DefaultPolicy allows every optional field
func DefaultPolicy() Policy {
	return Policy{AllowNotes: true, AllowTags: true, AllowLinkedIn: true}
}

// Config configures a Builder
type Config struct {
	Policy      Policy
	TokenBudget int // entity context gets at most half of this
}

// Builder renders prompts and entity context
type Builder struct {
	data        crm.DataAccess
	prompts     *prompts.Manager
	filter      *privacy.Filter
	policy      Policy
	tokenBudget int
	now         func() time.Time
	logger      *logging.Logger
}

// NewBuilder creates a context builder. A zero TokenBudget means 4000.
func NewBuilder(data crm.DataAccess, pm *prompts.Manager, cfg Config, logger *logging.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if pm == nil {
		pm = prompts.NewDefaultManager()
	}
	budget := cfg.TokenBudget
	if budget <= 0 {
		budget = 4000
	}
	return &Builder{
		data:        data,
		prompts:     pm,
		filter:      privacy.New(),
		policy:      cfg.Policy,
		tokenBudget: budget,
		now:         time.Now,
		logger:      logger.Named("context_builder"),
	}
}

// BuildPersonContext describes a person for the model
func (b *Builder) BuildPersonContext(ctx context.Context, id string) (string, error) {
	person, err := b.data.GetEntity(ctx, crm.EntityPerson, id)
	if err != nil {
		return "", fmt.Errorf("failed to load person %s: %w", id, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Person: %s (id: %s)\n", b.filter.Redact(person.Name), person.ID)

	if orgID := person.Field(crm.FieldOrganizationID); orgID != "" {
		if org, err := b.data.GetEntity(ctx, crm.EntityOrganization, orgID); err == nil {
			line := fmt.Sprintf("Organization: %s (id: %s)", b.filter.Redact(org.Name), org.ID)
			if role := person.Field(crm.FieldRole); role != "" {
				line += ", role: " + b.filter.Redact(role)
			}
			sb.WriteString(line + "\n")
		} else {
			b.logger.Debug("Linked organization not found",
				logging.String("person_id", id),
				logging.String("organization_id", orgID),
			)
		}
	}

	b.writeEntity(&sb, person, crm.FieldOrganizationID, crm.FieldRole)
	return b.truncate(sb.String()), nil
}

// BuildOrganizationContext describes an organization for the model
func (b *Builder) BuildOrganizationContext(ctx context.Context, id string) (string, error) {
	org, err := b.data.GetEntity(ctx, crm.EntityOrganization, id)
	if err != nil {
		return "", fmt.Errorf("failed to load organization %s: %w", id, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Organization: %s (id: %s)\n", b.filter.Redact(org.Name), org.ID)
	b.writeEntity(&sb, org)
	return b.truncate(sb.String()), nil
}

func (b *Builder) writeEntity(sb *strings.Builder, e *crm.Entity, skip ...string) {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		if b.excluded(k) || slices.Contains(skip, k) {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if v := e.Fields[k]; v != "" {
			fmt.Fprintf(sb, "%s: %s\n", fieldLabel(k), b.filter.Redact(v))
		}
	}

	if b.policy.AllowTags && len(e.Tags) > 0 {
		fmt.Fprintf(sb, "Tags: %s\n", b.filter.Redact(strings.Join(e.Tags, ", ")))
	}

	if b.policy.AllowNotes && len(e.Notes) > 0 {
		sb.WriteString("Notes:\n")
		for _, n := range e.Notes {
			fmt.Fprintf(sb, "- %s\n", b.filter.Redact(n.Text))
		}
	}
}

func (b *Builder) excluded(field string) bool {
	if crm.IsContactField(field) {
		return true
	}
	switch field {
	case crm.FieldName, crm.FieldNotes, crm.FieldTags:
		return true
	case crm.FieldLinkedIn:
		return !b.policy.AllowLinkedIn
	}
	return false
}

func fieldLabel(field string) string {
	label := strings.ReplaceAll(field, "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

// truncate cuts text to half the token budget at a word boundary. A word
// straddling the cut is dropped whole, even when it is the only one.
func (b *Builder) truncate(text string) string {
	text = strings.TrimRight(text, "\n")
	maxChars := b.tokenBudget / 2 * 4
	if len(text) <= maxChars {
		return text
	}

	cut := text[:maxChars]
	if !strings.ContainsRune(" \n\t", rune(text[maxChars])) {
		cut = cut[:max(strings.LastIndexAny(cut, " \n\t"), 0)]
	}
	return strings.TrimRight(cut, " \n\t") + TruncationMarker
}

// BuildSystemPrompt renders the instruction block plus at most one entity
// block. The person takes precedence when both ids are set. A missing entity
// is logged and left out.
func (b *Builder) BuildSystemPrompt(ctx context.Context, personID, orgID string) (string, error) {
	instructions, err := b.prompts.Render(prompts.ChatSystem, map[string]any{
		"Date": b.now().Format("2006-01-02"),
	})
	if err != nil {
		return "", err
	}

	var (
		entityType crm.EntityType
		block      string
	)
	switch {
	case personID != "":
		entityType = crm.EntityPerson
		block, err = b.BuildPersonContext(ctx, personID)
	case orgID != "":
		entityType = crm.EntityOrganization
		block, err = b.BuildOrganizationContext(ctx, orgID)
	default:
		return instructions, nil
	}

	if err != nil {
		if errors.Is(err, crm.ErrNotFound) {
			b.logger.Warn("Conversation entity not found, omitting context",
				logging.String("entity_type", string(entityType)),
				logging.Error(err),
			)
			return instructions, nil
		}
		return "", err
	}

	header, err := b.prompts.Render(prompts.EntityContextHeader, map[string]any{
		"EntityType": string(entityType),
	})
	if err != nil {
		return "", err
	}
	return instructions + "\n\n" + header + "\n\n" + block, nil
}

// BuildConversationContext prepends the system prompt to the history and
// redacts every user message. Incoming system messages are replaced.
func (b *Builder) BuildConversationContext(ctx context.Context, messages []llmtypes.Message, personID, orgID string) ([]llmtypes.Message, error) {
	system, err := b.BuildSystemPrompt(ctx, personID, orgID)
	if err != nil {
		return nil, err
	}

	out := make([]llmtypes.Message, 0, len(messages)+1)
	out = append(out, llmtypes.NewTextMessage(llmtypes.RoleSystem, system))
	for _, m := range messages {
		switch m.Role {
		case llmtypes.RoleSystem:
			continue
		case llmtypes.RoleUser:
			m.Content = b.redactContent(m.Content)
		}
		out = append(out, m)
	}
	return out, nil
}

func (b *Builder) redactContent(c llmtypes.MessageContent) llmtypes.MessageContent {
	if !c.IsBlocks() {
		return llmtypes.Text(b.filter.Redact(c.String()))
	}
	blocks := c.BlockList()
	redacted := make([]llmtypes.ContentBlock, len(blocks))
	for i, block := range blocks {
		if tb, ok := block.(llmtypes.TextBlock); ok {
			tb.Text = b.filter.Redact(tb.Text)
			block = tb
		}
		redacted[i] = block
	}
	return llmtypes.Blocks(redacted...)
}
