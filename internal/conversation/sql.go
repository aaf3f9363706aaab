package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/user/crmassist/internal/errors"
	"github.com/user/crmassist/internal/llmtypes"
)

// sqlStore implements Store over database/sql. Queries are written with
// '?' placeholders and rebound for dialects that number them.
type sqlStore struct {
	db       *sql.DB
	numbered bool
}

func (s *sqlStore) q(query string) string {
	if !s.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *sqlStore) CreateConversation(ctx context.Context, c *Conversation) error {
	prepareConversation(c)
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO conversations (id, title, entity_type, entity_id, provider, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.Title, c.EntityType, c.EntityID, c.Provider, c.Model,
		c.CreatedAt.UnixNano(), c.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return errors.NewStoreError("create conversation", err)
	}
	return nil
}

func (s *sqlStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, title, entity_type, entity_id, provider, model, created_at, updated_at
		FROM conversations WHERE id = ?`), id)

	c, err := scanConversation(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewConversationNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewStoreError("load conversation", err)
	}
	return c, nil
}

func (s *sqlStore) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`),
		title, time.Now().UTC().UnixNano(), id)
	if err != nil {
		return errors.NewStoreError("update title", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewConversationNotFoundError(id)
	}
	return nil
}

func (s *sqlStore) ListConversations(ctx context.Context, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, title, entity_type, entity_id, provider, model, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, errors.NewStoreError("list conversations", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, errors.NewStoreError("list conversations", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("list conversations", err)
	}
	return out, nil
}

func (s *sqlStore) AppendMessage(ctx context.Context, m *Message) error {
	prepareMessage(m)

	toolCalls, err := marshalNullable(m.ToolCalls)
	if err != nil {
		return errors.NewStoreError("encode tool calls", err)
	}
	suggestions, err := marshalNullable(m.Suggestions)
	if err != nil {
		return errors.NewStoreError("encode suggestions", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreError("append message", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.q(`UPDATE conversations SET updated_at = ? WHERE id = ?`),
		m.CreatedAt.UnixNano(), m.ConversationID)
	if err != nil {
		return errors.NewStoreError("append message", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewConversationNotFoundError(m.ConversationID)
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO messages (id, conversation_id, seq, role, content, tokens_in, tokens_out, model, tool_calls, suggestions, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?), ?, ?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.ConversationID, m.ConversationID, string(m.Role), m.Content,
		m.TokensIn, m.TokensOut, m.Model, toolCalls, suggestions, m.CreatedAt.UnixNano(),
	)
	if err != nil {
		return errors.NewStoreError("append message", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStoreError("append message", err)
	}
	return nil
}

func (s *sqlStore) Messages(ctx context.Context, conversationID string) ([]*Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, conversation_id, role, content, tokens_in, tokens_out, model, tool_calls, suggestions, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq`), conversationID)
	if err != nil {
		return nil, errors.NewStoreError("load messages", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var (
			m                      Message
			role                   string
			toolCalls, suggestions []byte
			createdAt              int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.TokensIn, &m.TokensOut,
			&m.Model, &toolCalls, &suggestions, &createdAt); err != nil {
			return nil, errors.NewStoreError("load messages", err)
		}
		m.Role = llmtypes.Role(role)
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &m.ToolCalls); err != nil {
				return nil, errors.NewStoreError("decode tool calls", err)
			}
		}
		if len(suggestions) > 0 {
			if err := json.Unmarshal(suggestions, &m.Suggestions); err != nil {
				return nil, errors.NewStoreError("decode suggestions", err)
			}
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("load messages", err)
	}
	return out, nil
}

func (s *sqlStore) Stats(ctx context.Context, conversationID string) (Stats, error) {
	msgs, err := s.Messages(ctx, conversationID)
	if err != nil {
		return Stats{}, err
	}
	return statsOf(msgs), nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.Title, &c.EntityType, &c.EntityID, &c.Provider, &c.Model, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	c.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &c, nil
}

func marshalNullable[T any](v []T) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}
