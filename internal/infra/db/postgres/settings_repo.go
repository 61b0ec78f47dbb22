package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/repository"
)

var _ repository.SettingsRepository = (*SettingsRepo)(nil)

type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

// Find returns defaults when the user has no stored row.
func (r *SettingsRepo) Find(ctx context.Context, qx any, userID string) (*model.UserSettings, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT user_id, pinned_credential_id, reply_length, thinking_effort, lorebook_cap, language
FROM user_settings WHERE user_id=$1;`
	var s model.UserSettings
	err = ex.QueryRow(ctx, q, userID).Scan(
		&s.UserID, &s.PinnedCredentialID, &s.ReplyLength, &s.ThinkingEffort, &s.LorebookCap, &s.Language)
	if err == pgx.ErrNoRows {
		return model.DefaultSettings(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("find settings: %w", err)
	}
	return &s, nil
}

func (r *SettingsRepo) Save(ctx context.Context, qx any, s *model.UserSettings) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO user_settings (user_id, pinned_credential_id, reply_length, thinking_effort, lorebook_cap, language)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (user_id) DO UPDATE SET
  pinned_credential_id = EXCLUDED.pinned_credential_id,
  reply_length = EXCLUDED.reply_length,
  thinking_effort = EXCLUDED.thinking_effort,
  lorebook_cap = EXCLUDED.lorebook_cap,
  language = EXCLUDED.language;`
	_, err = ex.Exec(ctx, q, s.UserID, s.PinnedCredentialID, s.ReplyLength, s.ThinkingEffort, s.LorebookCap, s.Language)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
