package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"persona-ai-chat/internal/domain"
	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/repository"
)

// Compile-time check
var _ CredentialUseCase = (*credentialUC)(nil)

// CredentialUseCase manages the provider key pool and implements the
// rotation policy: pinned credential first, then the first active
// credential not yet tried this request whose quota flag is unset or has
// cooled down.
type CredentialUseCase interface {
	Add(ctx context.Context, userID, secret, displayName string) (*model.APICredential, error)
	List(ctx context.Context, userID string) ([]*model.APICredential, error)
	Remove(ctx context.Context, id string) error
	Pin(ctx context.Context, userID, credentialID string) error

	// Select picks the credential for the next attempt, excluding ids in
	// tried. Returns domain.ErrNoCredential when the pool is exhausted.
	Select(ctx context.Context, userID string, tried map[string]bool) (*model.APICredential, error)
	// MarkExhausted flags a credential after a quota failure.
	MarkExhausted(ctx context.Context, credentialID string) error
	MarkUsed(ctx context.Context, credentialID string) error
}

type credentialUC struct {
	creds    repository.CredentialRepository
	settings repository.SettingsRepository
	log      *zerolog.Logger
}

func NewCredentialUseCase(creds repository.CredentialRepository, settings repository.SettingsRepository, logger *zerolog.Logger) *credentialUC {
	ucLog := logger.With().Str("component", "CredentialUC").Logger()
	return &credentialUC{creds: creds, settings: settings, log: &ucLog}
}

func (u *credentialUC) Add(ctx context.Context, userID, secret, displayName string) (*model.APICredential, error) {
	c, err := model.NewAPICredential(ulid.Make().String(), userID, strings.TrimSpace(secret), displayName)
	if err != nil {
		return nil, err
	}
	if err := u.creds.Save(ctx, nil, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (u *credentialUC) List(ctx context.Context, userID string) ([]*model.APICredential, error) {
	return u.creds.FindAllByUser(ctx, nil, userID)
}

func (u *credentialUC) Remove(ctx context.Context, id string) error {
	return u.creds.Delete(ctx, nil, id)
}

func (u *credentialUC) Pin(ctx context.Context, userID, credentialID string) error {
	if credentialID != "" {
		c, err := u.creds.FindByID(ctx, nil, credentialID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return domain.ErrNotFound
		}
	}
	s, err := u.settings.Find(ctx, nil, userID)
	if err != nil {
		return err
	}
	s.PinnedCredentialID = credentialID
	return u.settings.Save(ctx, nil, s)
}

func (u *credentialUC) Select(ctx context.Context, userID string, tried map[string]bool) (*model.APICredential, error) {
	pool, err := u.creds.FindAllByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	s, err := u.settings.Find(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	// Pinned credential wins when it is eligible and not yet burned this
	// request cycle.
	if s.PinnedCredentialID != "" && !tried[s.PinnedCredentialID] {
		for _, c := range pool {
			if c.ID == s.PinnedCredentialID && u.consider(ctx, c, now) {
				return c, nil
			}
		}
	}

	for _, c := range pool {
		if tried[c.ID] {
			continue
		}
		if u.consider(ctx, c, now) {
			return c, nil
		}
	}
	return nil, domain.ErrNoCredential
}

// consider reports eligibility and clears a stale quota flag as a side
// effect, so a cooled-down credential re-enters rotation lazily.
func (u *credentialUC) consider(ctx context.Context, c *model.APICredential, now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.QuotaExceededAt == nil {
		return true
	}
	if !c.CooldownExpired(now) {
		return false
	}
	c.ClearQuotaFlag()
	if err := u.creds.ClearQuotaExceeded(ctx, nil, c.ID); err != nil {
		u.log.Warn().Err(err).Str("credential_id", c.ID).Msg("clear stale quota flag failed")
	}
	return true
}

func (u *credentialUC) MarkExhausted(ctx context.Context, credentialID string) error {
	return u.creds.MarkQuotaExceeded(ctx, nil, credentialID, time.Now())
}

func (u *credentialUC) MarkUsed(ctx context.Context, credentialID string) error {
	return u.creds.TouchLastUsed(ctx, nil, credentialID, time.Now())
}
