package repository

import (
	"context"

	"persona-ai-chat/internal/domain/model"
)

// -----------------------------
// Conversations
// -----------------------------

// ConversationRepository persists conversations and their message log.
// qx is an optional transaction/connection handle (pgx.Tx, *pgxpool.Conn)
// passed through to the executor; nil means the pool.
type ConversationRepository interface {
	// Save upserts conversation metadata (title, persona, note, summary,
	// checkpoint, timestamps). Messages are appended separately.
	Save(ctx context.Context, qx any, c *model.Conversation) error
	// AppendMessage durably stores one message at its index. The send path
	// must not build the next prompt before this returns.
	AppendMessage(ctx context.Context, qx any, m *model.ChatMessage) error
	// ReplaceMessage overwrites content at index in place (user edit).
	ReplaceMessage(ctx context.Context, qx any, conversationID string, index int, content string, tokens int) error
	// TruncateAfter deletes all messages with Index > index (reroll).
	TruncateAfter(ctx context.Context, qx any, conversationID string, index int) error
	// UpdateSummary atomically installs a merged summary and advances the
	// checkpoint. Implementations must keep the checkpoint monotonic.
	UpdateSummary(ctx context.Context, qx any, conversationID, summary string, checkpoint int) error
	FindByID(ctx context.Context, qx any, id string) (*model.Conversation, error)
	FindAllByUser(ctx context.Context, qx any, userID string) ([]*model.Conversation, error)
	// LoadWindow reads count messages starting at start (for backward
	// scroll pagination); it is independent of the prompt recent window.
	LoadWindow(ctx context.Context, qx any, conversationID string, start, count int) ([]model.ChatMessage, error)
	Delete(ctx context.Context, qx any, id string) error
}
