package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"persona-ai-chat/internal/domain"
	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/repository"
)

var _ SettingsUseCase = (*settingsUC)(nil)

// SettingsUpdate carries optional per-user preference changes.
type SettingsUpdate struct {
	ReplyLength    *model.ReplyLength
	ThinkingEffort *model.ThinkingEffort
	LorebookCap    *int
	Language       *string
}

type SettingsUseCase interface {
	Get(ctx context.Context, userID string) (*model.UserSettings, error)
	Update(ctx context.Context, userID string, upd SettingsUpdate) (*model.UserSettings, error)
}

type settingsUC struct {
	settings repository.SettingsRepository
	log      *zerolog.Logger
}

func NewSettingsUseCase(settings repository.SettingsRepository, logger *zerolog.Logger) *settingsUC {
	ucLog := logger.With().Str("component", "SettingsUC").Logger()
	return &settingsUC{settings: settings, log: &ucLog}
}

func (u *settingsUC) Get(ctx context.Context, userID string) (*model.UserSettings, error) {
	return u.settings.Find(ctx, nil, userID)
}

func (u *settingsUC) Update(ctx context.Context, userID string, upd SettingsUpdate) (*model.UserSettings, error) {
	s, err := u.settings.Find(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if upd.ReplyLength != nil {
		if !upd.ReplyLength.Valid() {
			return nil, fmt.Errorf("%w: unknown reply length %q", domain.ErrInvalidArgument, *upd.ReplyLength)
		}
		s.ReplyLength = *upd.ReplyLength
	}
	if upd.ThinkingEffort != nil {
		if !upd.ThinkingEffort.Valid() {
			return nil, fmt.Errorf("%w: unknown thinking effort %q", domain.ErrInvalidArgument, *upd.ThinkingEffort)
		}
		s.ThinkingEffort = *upd.ThinkingEffort
	}
	if upd.LorebookCap != nil {
		if *upd.LorebookCap < 0 {
			return nil, fmt.Errorf("%w: lorebook cap must be non-negative", domain.ErrInvalidArgument)
		}
		s.LorebookCap = *upd.LorebookCap
	}
	if upd.Language != nil {
		s.Language = *upd.Language
	}
	if err := u.settings.Save(ctx, nil, s); err != nil {
		return nil, err
	}
	return s, nil
}
