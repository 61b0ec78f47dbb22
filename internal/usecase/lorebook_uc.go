package usecase

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/repository"
)

var _ LorebookUseCase = (*lorebookUC)(nil)

// LorebookUpdate carries the mutable fields of an entry; nil pointers
// leave the stored value untouched.
type LorebookUpdate struct {
	Keywords *[]string
	Content  *string
	Enabled  *bool
}

type LorebookUseCase interface {
	Create(ctx context.Context, userID string, keywords []string, content string) (*model.LorebookEntry, error)
	Update(ctx context.Context, id string, upd LorebookUpdate) (*model.LorebookEntry, error)
	Get(ctx context.Context, id string) (*model.LorebookEntry, error)
	List(ctx context.Context, userID string) ([]*model.LorebookEntry, error)
	Delete(ctx context.Context, id string) error
}

type lorebookUC struct {
	entries repository.LorebookRepository
	log     *zerolog.Logger
}

func NewLorebookUseCase(entries repository.LorebookRepository, logger *zerolog.Logger) *lorebookUC {
	ucLog := logger.With().Str("component", "LorebookUC").Logger()
	return &lorebookUC{entries: entries, log: &ucLog}
}

func (u *lorebookUC) Create(ctx context.Context, userID string, keywords []string, content string) (*model.LorebookEntry, error) {
	e, err := model.NewLorebookEntry(ulid.Make().String(), userID, keywords, content)
	if err != nil {
		return nil, err
	}
	if err := u.entries.Save(ctx, nil, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (u *lorebookUC) Update(ctx context.Context, id string, upd LorebookUpdate) (*model.LorebookEntry, error) {
	e, err := u.entries.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if upd.Keywords != nil {
		e.Keywords = *upd.Keywords
	}
	if upd.Content != nil {
		e.Content = *upd.Content
	}
	if upd.Enabled != nil {
		e.Enabled = *upd.Enabled
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	e.UpdatedAt = time.Now()
	if err := u.entries.Save(ctx, nil, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (u *lorebookUC) Get(ctx context.Context, id string) (*model.LorebookEntry, error) {
	return u.entries.FindByID(ctx, nil, id)
}

func (u *lorebookUC) List(ctx context.Context, userID string) ([]*model.LorebookEntry, error) {
	return u.entries.FindAllByUser(ctx, nil, userID)
}

func (u *lorebookUC) Delete(ctx context.Context, id string) error {
	return u.entries.Delete(ctx, nil, id)
}
