package crm

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/user/crmassist/internal/logging"
)

type entityKey struct {
	typ EntityType
	id  string
}

// MemoryStore is an in-process DataAccess implementation. It is safe for
// concurrent readers and serializes writers.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[entityKey]*Entity
	changes  []Change
	now      func() time.Time
	logger   *logging.Logger
}

var _ DataAccess = &MemoryStore{}

func NewMemoryStore(logger *logging.Logger) *MemoryStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &MemoryStore{
		entities: make(map[entityKey]*Entity),
		now:      time.Now,
		logger:   logger.Named("crm"),
	}
}

// Put inserts or replaces an entity
func (s *MemoryStore) Put(e *Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := e.Clone()
	if c.Fields == nil {
		c.Fields = map[string]string{}
	}
	s.entities[entityKey{c.Type, c.ID}] = c
}

func (s *MemoryStore) GetEntity(_ context.Context, typ EntityType, id string) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[entityKey{typ, id}]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", typ, id, ErrNotFound)
	}
	return e.Clone(), nil
}

// UpdateField sets a field. The notes field appends a note and the tags
// field adds a tag; organization_id must reference an existing organization.
func (s *MemoryStore) UpdateField(_ context.Context, typ EntityType, id, field, value string, prov Provenance) error {
	field = strings.TrimSpace(field)
	if field == "" {
		return fmt.Errorf("empty field name: %w", ErrInvalidField)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[entityKey{typ, id}]
	if !ok {
		return fmt.Errorf("%s %s: %w", typ, id, ErrNotFound)
	}
	if prov.At.IsZero() {
		prov.At = s.now()
	}

	old := e.Field(field)
	switch field {
	case FieldName:
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("name cannot be empty: %w", ErrInvalidField)
		}
		e.Name = value
	case FieldNotes:
		e.Notes = append(e.Notes, Note{Text: value, Source: prov.Tool, CreatedAt: prov.At})
		old = ""
	case FieldTags:
		if !slices.Contains(e.Tags, value) {
			e.Tags = append(e.Tags, value)
		}
		old = ""
	case FieldOrganizationID:
		if typ != EntityPerson {
			return fmt.Errorf("%s on %s: %w", field, typ, ErrInvalidField)
		}
		if _, ok := s.entities[entityKey{EntityOrganization, value}]; !ok {
			return fmt.Errorf("organization %s: %w", value, ErrNotFound)
		}
		e.Fields[field] = value
	default:
		e.Fields[field] = value
	}
	e.UpdatedAt = prov.At

	s.changes = append(s.changes, Change{
		Type: typ, ID: id, Field: field,
		OldValue: old, NewValue: value,
		Provenance: prov,
	})
	s.logger.Info("CRM field updated",
		logging.String("entity_type", string(typ)),
		logging.String("entity_id", id),
		logging.String("field", field),
		logging.String("conversation_id", prov.ConversationID),
		logging.String("tool", prov.Tool),
	)
	return nil
}

func (s *MemoryStore) CreateRelatedEntity(_ context.Context, req CreateRequest, prov Provenance) (*Entity, error) {
	if !ValidType(req.Type) {
		return nil, fmt.Errorf("unknown entity type %q", req.Type)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("name is required: %w", ErrInvalidField)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prov.At.IsZero() {
		prov.At = s.now()
	}

	e := &Entity{
		Type:      req.Type,
		ID:        uuid.NewString(),
		Name:      req.Name,
		Fields:    map[string]string{},
		Tags:      slices.Clone(req.Tags),
		UpdatedAt: prov.At,
	}
	for k, v := range req.Fields {
		e.Fields[k] = v
	}

	if rel := req.Related; rel != nil {
		target, ok := s.entities[entityKey{rel.Type, rel.ID}]
		if !ok {
			return nil, fmt.Errorf("related %s %s: %w", rel.Type, rel.ID, ErrNotFound)
		}
		switch {
		case req.Type == EntityPerson && rel.Type == EntityOrganization:
			e.Fields[FieldOrganizationID] = target.ID
			if rel.Role != "" {
				e.Fields[FieldRole] = rel.Role
			}
		case req.Type == EntityOrganization && rel.Type == EntityPerson:
			target.Fields[FieldOrganizationID] = e.ID
			if rel.Role != "" {
				target.Fields[FieldRole] = rel.Role
			}
			target.UpdatedAt = prov.At
		}
	}

	s.entities[entityKey{e.Type, e.ID}] = e
	s.changes = append(s.changes, Change{
		Type: e.Type, ID: e.ID, Field: "created",
		NewValue: e.Name, Provenance: prov,
	})
	s.logger.Info("CRM entity created",
		logging.String("entity_type", string(e.Type)),
		logging.String("entity_id", e.ID),
		logging.String("conversation_id", prov.ConversationID),
		logging.String("tool", prov.Tool),
	)
	return e.Clone(), nil
}

// SearchEntities matches query case-insensitively against names, tags and
// non-contact fields. An empty type searches every type.
func (s *MemoryStore) SearchEntities(_ context.Context, typ EntityType, query string, limit int) ([]*Entity, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*Entity
	for key, e := range s.entities {
		if typ != "" && key.typ != typ {
			continue
		}
		if q == "" || entityMatches(e, q) {
			matches = append(matches, e.Clone())
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Name != matches[j].Name {
			return matches[i].Name < matches[j].Name
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func entityMatches(e *Entity, q string) bool {
	if strings.Contains(strings.ToLower(e.Name), q) {
		return true
	}
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	for k, v := range e.Fields {
		if IsContactField(k) {
			continue
		}
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

// Changes returns the mutation audit log in order
func (s *MemoryStore) Changes() []Change {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.changes)
}

type seedEntity struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	OrganizationID string            `yaml:"organization_id,omitempty"`
	Fields         map[string]string `yaml:"fields,omitempty"`
	Tags           []string          `yaml:"tags,omitempty"`
	Notes          []Note            `yaml:"notes,omitempty"`
}

type seedFile struct {
	People        []seedEntity `yaml:"people"`
	Organizations []seedEntity `yaml:"organizations"`
}

// LoadSeed reads a YAML seed file into the store
func (s *MemoryStore) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	return s.LoadSeedData(data)
}

// LoadSeedData parses YAML seed content into the store
func (s *MemoryStore) LoadSeedData(data []byte) error {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	add := func(typ EntityType, se seedEntity) error {
		if se.ID == "" || se.Name == "" {
			return fmt.Errorf("%s entries need id and name", typ)
		}
		fields := map[string]string{}
		for k, v := range se.Fields {
			fields[k] = v
		}
		if se.OrganizationID != "" {
			fields[FieldOrganizationID] = se.OrganizationID
		}
		s.Put(&Entity{Type: typ, ID: se.ID, Name: se.Name, Fields: fields, Tags: se.Tags, Notes: se.Notes})
		return nil
	}

	for _, org := range seed.Organizations {
		if err := add(EntityOrganization, org); err != nil {
			return err
		}
	}
	for _, person := range seed.People {
		if err := add(EntityPerson, person); err != nil {
			return err
		}
	}

	s.logger.Debug("CRM seed loaded",
		logging.Int("people", len(seed.People)),
		logging.Int("organizations", len(seed.Organizations)),
	)
	return nil
}
