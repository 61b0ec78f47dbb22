package repository

import (
	"context"

	"persona-ai-chat/internal/domain/model"
)

// SettingsRepository stores per-user preferences. Find returns
// model.DefaultSettings when no row exists.
type SettingsRepository interface {
	Find(ctx context.Context, qx any, userID string) (*model.UserSettings, error)
	Save(ctx context.Context, qx any, s *model.UserSettings) error
}
