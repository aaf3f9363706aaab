package conversation

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/crmassist/internal/errors"
)

// MemoryStore keeps conversations in process memory
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]*Message
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, c *Conversation) error {
	prepareConversation(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.conversations[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, errors.NewConversationNotFoundError(id)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) UpdateTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return errors.NewConversationNotFoundError(id)
	}
	c.Title = title
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListConversations(_ context.Context, limit int) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, m *Message) error {
	prepareMessage(m)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[m.ConversationID]
	if !ok {
		return errors.NewConversationNotFoundError(m.ConversationID)
	}
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], cloneMessage(m))
	c.UpdatedAt = m.CreatedAt
	return nil
}

func (s *MemoryStore) Messages(_ context.Context, conversationID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, errors.NewConversationNotFoundError(conversationID)
	}
	msgs := s.messages[conversationID]
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, cloneMessage(m))
	}
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context, conversationID string) (Stats, error) {
	msgs, err := s.Messages(ctx, conversationID)
	if err != nil {
		return Stats{}, err
	}
	return statsOf(msgs), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func prepareConversation(c *Conversation) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
}

func prepareMessage(m *Message) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
}

func cloneMessage(m *Message) *Message {
	cp := *m
	cp.ToolCalls = slices.Clone(m.ToolCalls)
	cp.Suggestions = slices.Clone(m.Suggestions)
	return &cp
}
