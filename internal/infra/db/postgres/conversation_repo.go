package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"persona-ai-chat/internal/domain"
	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/repository"
	"persona-ai-chat/internal/infra/redis"
)

var _ repository.ConversationRepository = (*ConversationRepo)(nil)

// ConversationRepo persists conversations and their message log. A Redis
// cache keeps hot conversations out of the critical read path; any message
// mutation invalidates the cached copy so the scheduler's fresh re-read
// contract holds.
type ConversationRepo struct {
	pool  *pgxpool.Pool
	cache *redis.ConvoCache
}

func NewConversationRepo(pool *pgxpool.Pool, cache *redis.ConvoCache) *ConversationRepo {
	return &ConversationRepo{pool: pool, cache: cache}
}

func (r *ConversationRepo) Save(ctx context.Context, qx any, c *model.Conversation) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO conversations
  (id, user_id, title, title_edited, persona_name, persona_instructions,
   user_note, model, context_summary, summary_checkpoint, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,COALESCE($11,NOW()),COALESCE($12,NOW()))
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  title_edited = EXCLUDED.title_edited,
  persona_name = EXCLUDED.persona_name,
  persona_instructions = EXCLUDED.persona_instructions,
  user_note = EXCLUDED.user_note,
  model = EXCLUDED.model,
  context_summary = EXCLUDED.context_summary,
  summary_checkpoint = GREATEST(conversations.summary_checkpoint, EXCLUDED.summary_checkpoint),
  updated_at = EXCLUDED.updated_at;`
	_, err = ex.Exec(ctx, q,
		c.ID, c.UserID, c.Title, c.TitleEdited, c.PersonaName, c.PersonaInstructions,
		c.UserNote, c.Model, c.ContextSummary, c.SummaryCheckpoint, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if r.cache != nil {
		_ = r.cache.Store(ctx, c)
	}
	return nil
}

func (r *ConversationRepo) AppendMessage(ctx context.Context, qx any, m *model.ChatMessage) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO messages (conversation_id, idx, role, content, tokens, created_at)
VALUES ($1,$2,$3,$4,$5,COALESCE($6,NOW()));`
	if _, err = ex.Exec(ctx, q, m.ConversationID, m.Index, m.Role, m.Content, m.Tokens, m.Timestamp); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	r.invalidate(ctx, m.ConversationID)
	return nil
}

func (r *ConversationRepo) ReplaceMessage(ctx context.Context, qx any, conversationID string, index int, content string, tokens int) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `UPDATE messages SET content=$3, tokens=$4 WHERE conversation_id=$1 AND idx=$2;`
	tag, err := ex.Exec(ctx, q, conversationID, index, content, tokens)
	if err != nil {
		return fmt.Errorf("replace message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	r.invalidate(ctx, conversationID)
	return nil
}

func (r *ConversationRepo) TruncateAfter(ctx context.Context, qx any, conversationID string, index int) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `DELETE FROM messages WHERE conversation_id=$1 AND idx > $2;`
	if _, err = ex.Exec(ctx, q, conversationID, index); err != nil {
		return fmt.Errorf("truncate messages: %w", err)
	}
	// A checkpoint past the new end would reference deleted turns.
	const clampQ = `
UPDATE conversations
SET summary_checkpoint = LEAST(summary_checkpoint, (
	SELECT COUNT(*) FROM messages WHERE conversation_id = $1
))
WHERE id = $1;`
	if _, err = ex.Exec(ctx, clampQ, conversationID); err != nil {
		return fmt.Errorf("clamp checkpoint: %w", err)
	}
	r.invalidate(ctx, conversationID)
	return nil
}

func (r *ConversationRepo) UpdateSummary(ctx context.Context, qx any, conversationID, summary string, checkpoint int) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	// GREATEST keeps the checkpoint monotonic even if two summarization
	// runs race past the advisory lock.
	const q = `
UPDATE conversations
SET context_summary = $2,
    summary_checkpoint = GREATEST(summary_checkpoint, $3),
    updated_at = NOW()
WHERE id = $1;`
	tag, err := ex.Exec(ctx, q, conversationID, summary, checkpoint)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	r.invalidate(ctx, conversationID)
	return nil
}

func (r *ConversationRepo) FindByID(ctx context.Context, qx any, id string) (*model.Conversation, error) {
	// Only the pool path consults the cache; transactional reads must see
	// their own writes.
	if qx == nil && r.cache != nil {
		if c, err := r.cache.Get(ctx, id); err == nil {
			return c, nil
		}
	}
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}

	const q = `
SELECT id, user_id, title, title_edited, persona_name, persona_instructions,
       user_note, model, context_summary, summary_checkpoint, created_at, updated_at
FROM conversations WHERE id=$1;`
	var c model.Conversation
	err = ex.QueryRow(ctx, q, id).Scan(
		&c.ID, &c.UserID, &c.Title, &c.TitleEdited, &c.PersonaName, &c.PersonaInstructions,
		&c.UserNote, &c.Model, &c.ContextSummary, &c.SummaryCheckpoint, &c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	c.Messages, err = r.loadMessages(ctx, ex, id)
	if err != nil {
		return nil, err
	}
	if qx == nil && r.cache != nil {
		_ = r.cache.Store(ctx, &c)
	}
	return &c, nil
}

func (r *ConversationRepo) loadMessages(ctx context.Context, ex executor, conversationID string) ([]model.ChatMessage, error) {
	const q = `
SELECT conversation_id, idx, role, content, tokens, created_at
FROM messages WHERE conversation_id=$1 ORDER BY idx;`
	rows, err := ex.Query(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ConversationID, &m.Index, &m.Role, &m.Content, &m.Tokens, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *ConversationRepo) FindAllByUser(ctx context.Context, qx any, userID string) ([]*model.Conversation, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	// Listing returns metadata only; message logs are loaded per
	// conversation or through LoadWindow.
	const q = `
SELECT id, user_id, title, title_edited, persona_name, persona_instructions,
       user_note, model, context_summary, summary_checkpoint, created_at, updated_at
FROM conversations WHERE user_id=$1 ORDER BY updated_at DESC;`
	rows, err := ex.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Title, &c.TitleEdited, &c.PersonaName, &c.PersonaInstructions,
			&c.UserNote, &c.Model, &c.ContextSummary, &c.SummaryCheckpoint, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *ConversationRepo) LoadWindow(ctx context.Context, qx any, conversationID string, start, count int) ([]model.ChatMessage, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT conversation_id, idx, role, content, tokens, created_at
FROM messages WHERE conversation_id=$1 AND idx >= $2 ORDER BY idx LIMIT $3;`
	rows, err := ex.Query(ctx, q, conversationID, start, count)
	if err != nil {
		return nil, fmt.Errorf("load window: %w", err)
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ConversationID, &m.Index, &m.Role, &m.Content, &m.Tokens, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *ConversationRepo) Delete(ctx context.Context, qx any, id string) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `DELETE FROM conversations WHERE id=$1;`
	tag, err := ex.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *ConversationRepo) invalidate(ctx context.Context, id string) {
	if r.cache != nil {
		_ = r.cache.Delete(ctx, id)
	}
}
