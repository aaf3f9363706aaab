package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/crmassist/internal/crm"
	"github.com/user/crmassist/internal/llmtypes"
	"github.com/user/crmassist/internal/privacy"
)

var errNoData = errors.New("CRM data access is not configured")

var (
	personFields       = []string{"name", "title", "role", "location", "linkedin_url", "website", "birthday"}
	organizationFields = []string{"name", "industry", "website", "location", "description", "size"}
)

var (
	readNeeds  = Needs{Data: true}
	writeNeeds = Needs{Data: true, Conversation: true, Logger: true}
)

// CRMTools returns the lookup and mutation tools over the CRM data capability
func CRMTools() []Tool {
	return []Tool{
		{
			Name:        "lookup_person",
			Description: "Look up a person in the CRM by id. Returns their profile, tags and notes.",
			Category:    CategoryCRM,
			Needs:       readNeeds,
			Parameters: []llmtypes.Parameter{
				{Name: "person_id", Type: llmtypes.TypeString, Required: true},
			},
			Handler: lookupHandler(crm.EntityPerson, "person_id"),
		},
		{
			Name:        "lookup_organization",
			Description: "Look up an organization in the CRM by id.",
			Category:    CategoryCRM,
			Needs:       readNeeds,
			Parameters: []llmtypes.Parameter{
				{Name: "organization_id", Type: llmtypes.TypeString, Required: true},
			},
			Handler: lookupHandler(crm.EntityOrganization, "organization_id"),
		},
		{
			Name:        "search_contacts",
			Description: "Search CRM people and organizations by name, tag or field value.",
			Category:    CategoryCRM,
			Needs:       readNeeds,
			Parameters: []llmtypes.Parameter{
				{Name: "query", Type: llmtypes.TypeString, Required: true},
				{Name: "entity_type", Type: llmtypes.TypeString, Enum: []string{"person", "organization"}},
				{Name: "limit", Type: llmtypes.TypeInteger, Default: 10},
			},
			Handler: searchContacts,
		},
		{
			Name:                 "update_person_field",
			Description:          "Update one profile field of a person. Only use facts you can cite.",
			Category:             CategoryCRM,
			RequiresConfirmation: true,
			Needs:                writeNeeds,
			Parameters: []llmtypes.Parameter{
				{Name: "person_id", Type: llmtypes.TypeString, Required: true},
				{Name: "field", Type: llmtypes.TypeString, Required: true, Enum: personFields},
				{Name: "value", Type: llmtypes.TypeString, Required: true},
			},
			Handler: updateFieldHandler(crm.EntityPerson, "person_id", "update_person_field"),
		},
		{
			Name:                 "update_organization_field",
			Description:          "Update one profile field of an organization. Only use facts you can cite.",
			Category:             CategoryCRM,
			RequiresConfirmation: true,
			Needs:                writeNeeds,
			Parameters: []llmtypes.Parameter{
				{Name: "organization_id", Type: llmtypes.TypeString, Required: true},
				{Name: "field", Type: llmtypes.TypeString, Required: true, Enum: organizationFields},
				{Name: "value", Type: llmtypes.TypeString, Required: true},
			},
			Handler: updateFieldHandler(crm.EntityOrganization, "organization_id", "update_organization_field"),
		},
		{
			Name:                 "create_organization",
			Description:          "Create an organization, optionally linking an existing person to it.",
			Category:             CategoryCRM,
			RequiresConfirmation: true,
			Needs:                writeNeeds,
			Parameters: []llmtypes.Parameter{
				{Name: "name", Type: llmtypes.TypeString, Required: true},
				{Name: "industry", Type: llmtypes.TypeString},
				{Name: "website", Type: llmtypes.TypeString},
				{Name: "person_id", Type: llmtypes.TypeString, Description: "Person to link to the new organization"},
				{Name: "role", Type: llmtypes.TypeString, Description: "The person's role at the organization"},
			},
			Handler: createOrganization,
		},
		{
			Name:                 "add_person_to_organization",
			Description:          "Record that a person works at or is affiliated with an organization.",
			Category:             CategoryCRM,
			RequiresConfirmation: true,
			Needs:                writeNeeds,
			Parameters: []llmtypes.Parameter{
				{Name: "person_id", Type: llmtypes.TypeString, Required: true},
				{Name: "organization_id", Type: llmtypes.TypeString, Required: true},
				{Name: "role", Type: llmtypes.TypeString},
			},
			Handler: addPersonToOrganization,
		},
		{
			Name:                 "add_note",
			Description:          "Append a note to a person or organization.",
			Category:             CategoryCRM,
			RequiresConfirmation: true,
			Needs:                writeNeeds,
			Parameters: []llmtypes.Parameter{
				{Name: "entity_type", Type: llmtypes.TypeString, Required: true, Enum: []string{"person", "organization"}},
				{Name: "entity_id", Type: llmtypes.TypeString, Required: true},
				{Name: "note", Type: llmtypes.TypeString, Required: true},
			},
			Handler: addNote,
		},
	}
}

func provenance(env Env, tool string) crm.Provenance {
	return crm.Provenance{ConversationID: env.ConversationID, Tool: tool}
}

func lookupHandler(typ crm.EntityType, idArg string) Handler {
	return func(ctx context.Context, args Args, env Env) (any, error) {
		if env.Data == nil {
			return nil, errNoData
		}
		e, err := env.Data.GetEntity(ctx, typ, args.String(idArg))
		if err != nil {
			return nil, err
		}
		return EntityView(e), nil
	}
}

func searchContacts(ctx context.Context, args Args, env Env) (any, error) {
	if env.Data == nil {
		return nil, errNoData
	}
	entities, err := env.Data.SearchEntities(ctx, crm.EntityType(args.String("entity_type")), args.String("query"), args.Int("limit"))
	if err != nil {
		return nil, err
	}
	matches := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		matches = append(matches, map[string]any{
			"type": string(e.Type),
			"id":   e.ID,
			"name": e.Name,
		})
	}
	return map[string]any{"matches": matches}, nil
}

func updateFieldHandler(typ crm.EntityType, idArg, toolName string) Handler {
	return func(ctx context.Context, args Args, env Env) (any, error) {
		if env.Data == nil {
			return nil, errNoData
		}
		id, field, value := args.String(idArg), args.String("field"), args.String("value")
		if err := env.Data.UpdateField(ctx, typ, id, field, value, provenance(env, toolName)); err != nil {
			return nil, err
		}
		return map[string]any{"updated": true, "id": id, "field": field, "value": value}, nil
	}
}

func createOrganization(ctx context.Context, args Args, env Env) (any, error) {
	if env.Data == nil {
		return nil, errNoData
	}
	req := crm.CreateRequest{
		Type:   crm.EntityOrganization,
		Name:   args.String("name"),
		Fields: map[string]string{},
	}
	for _, f := range []string{"industry", "website"} {
		if v := args.String(f); v != "" {
			req.Fields[f] = v
		}
	}
	if personID := args.String("person_id"); personID != "" {
		req.Related = &crm.Relation{Type: crm.EntityPerson, ID: personID, Role: args.String("role")}
	}

	org, err := env.Data.CreateRelatedEntity(ctx, req, provenance(env, "create_organization"))
	if err != nil {
		return nil, err
	}
	if env.Logger != nil {
		env.Logger.Info("Organization created from conversation")
	}
	return map[string]any{"created": true, "organization_id": org.ID, "name": org.Name}, nil
}

func addPersonToOrganization(ctx context.Context, args Args, env Env) (any, error) {
	if env.Data == nil {
		return nil, errNoData
	}
	personID, orgID := args.String("person_id"), args.String("organization_id")
	prov := provenance(env, "add_person_to_organization")

	if err := env.Data.UpdateField(ctx, crm.EntityPerson, personID, crm.FieldOrganizationID, orgID, prov); err != nil {
		return nil, err
	}
	if role := args.String("role"); role != "" {
		if err := env.Data.UpdateField(ctx, crm.EntityPerson, personID, crm.FieldRole, role, prov); err != nil {
			return Partial(map[string]any{"linked": true}, fmt.Sprintf("role not saved: %v", err)), nil
		}
	}
	return map[string]any{"linked": true, "person_id": personID, "organization_id": orgID}, nil
}

func addNote(ctx context.Context, args Args, env Env) (any, error) {
	if env.Data == nil {
		return nil, errNoData
	}
	typ := crm.EntityType(args.String("entity_type"))
	id := args.String("entity_id")
	if err := env.Data.UpdateField(ctx, typ, id, crm.FieldNotes, args.String("note"), provenance(env, "add_note")); err != nil {
		return nil, err
	}
	return map[string]any{"noted": true, "entity_type": string(typ), "entity_id": id}, nil
}

// EntityView renders an entity for the model. Contact fields are never
// included and notes are privacy-filtered.
func EntityView(e *crm.Entity) map[string]any {
	fields := make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		if crm.IsContactField(k) {
			continue
		}
		fields[k] = privacy.Redact(v)
	}

	notes := make([]string, 0, len(e.Notes))
	for _, n := range e.Notes {
		notes = append(notes, privacy.Redact(n.Text))
	}

	return map[string]any{
		"type":   string(e.Type),
		"id":     e.ID,
		"name":   e.Name,
		"fields": fields,
		"tags":   e.Tags,
		"notes":  notes,
	}
}

// RegisterBuiltins registers the CRM tools and any configured search tools
func RegisterBuiltins(registry *Registry, backends SearchBackends) error {
	if err := registry.RegisterAll(CRMTools()...); err != nil {
		return err
	}
	return registry.RegisterAll(SearchTools(backends)...)
}
