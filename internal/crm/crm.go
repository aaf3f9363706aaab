// Package crm defines the data-access capability the assistant's tools read and
// mutate, together with an in-memory reference store that can be seeded from YAML.
package crm

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"
)

// EntityType names a kind of CRM record
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
)

var (
	ErrNotFound     = errors.New("entity not found")
	ErrInvalidField = errors.New("field cannot be updated")
)

// Field names with special handling by stores
const (
	FieldName           = "name"
	FieldNotes          = "notes"
	FieldTags           = "tags"
	FieldEmail          = "email"
	FieldPhone          = "phone"
	FieldLinkedIn       = "linkedin_url"
	FieldOrganizationID = "organization_id"
	FieldRole           = "role"
)

// contactMarkers identify fields holding direct contact data
var contactMarkers = []string{"email", "e_mail", "phone", "mobile", "fax"}

// IsContactField reports whether a field holds an email address or a phone
// number, judged by its name: email, work_email, mobile, home_phone and so on.
// Such fields never leave the process.
func IsContactField(field string) bool {
	field = strings.ToLower(field)
	for _, m := range contactMarkers {
		if strings.Contains(field, m) {
			return true
		}
	}
	return false
}

// Note is a free-text fact recorded against an entity
type Note struct {
	Text      string    `yaml:"text" json:"text"`
	Source    string    `yaml:"source,omitempty" json:"source,omitempty"`
	CreatedAt time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
}

// Entity is a person or organization with its recorded facts
type Entity struct {
	Type      EntityType
	ID        string
	Name      string
	Fields    map[string]string
	Tags      []string
	Notes     []Note
	UpdatedAt time.Time
}

// Clone returns a deep copy
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Fields = maps.Clone(e.Fields)
	c.Tags = slices.Clone(e.Tags)
	c.Notes = slices.Clone(e.Notes)
	return &c
}

// Field returns a field value, or "" when unset
func (e *Entity) Field(name string) string {
	if name == FieldName {
		return e.Name
	}
	return e.Fields[name]
}

// Provenance records which conversation and tool caused a mutation
type Provenance struct {
	ConversationID string
	Tool           string
	At             time.Time
}

// Change is one audited mutation
type Change struct {
	Type       EntityType
	ID         string
	Field      string
	OldValue   string
	NewValue   string
	Provenance Provenance
}

// CreateRequest describes a new entity, optionally linked to an existing one
type CreateRequest struct {
	Type    EntityType
	Name    string
	Fields  map[string]string
	Tags    []string
	Related *Relation
}

// Relation links a new entity to an existing one
type Relation struct {
	Type EntityType
	ID   string
	Role string
}

// DataAccess is the CRM surface the assistant consumes
type DataAccess interface {
	GetEntity(ctx context.Context, typ EntityType, id string) (*Entity, error)
	UpdateField(ctx context.Context, typ EntityType, id, field, value string, prov Provenance) error
	CreateRelatedEntity(ctx context.Context, req CreateRequest, prov Provenance) (*Entity, error)
	SearchEntities(ctx context.Context, typ EntityType, query string, limit int) ([]*Entity, error)
}

// ValidType reports whether typ is a known entity type
func ValidType(typ EntityType) bool {
	return typ == EntityPerson || typ == EntityOrganization
}
