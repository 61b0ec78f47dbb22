package repository

import (
	"context"

	"persona-ai-chat/internal/domain/model"
)

// -----------------------------
// Lorebook
// -----------------------------

type LorebookRepository interface {
	Save(ctx context.Context, qx any, e *model.LorebookEntry) error
	FindByID(ctx context.Context, qx any, id string) (*model.LorebookEntry, error)
	FindAllByUser(ctx context.Context, qx any, userID string) ([]*model.LorebookEntry, error)
	Delete(ctx context.Context, qx any, id string) error
}
