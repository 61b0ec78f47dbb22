package repository

import (
	"context"
	"time"

	"persona-ai-chat/internal/domain/model"
)

// -----------------------------
// API credentials
// -----------------------------

// CredentialRepository stores the provider key pool. Flag updates are
// single idempotent upserts keyed by id, not read-modify-write of a whole
// record, so concurrent requests marking the same credential are safe.
type CredentialRepository interface {
	Save(ctx context.Context, qx any, c *model.APICredential) error
	FindByID(ctx context.Context, qx any, id string) (*model.APICredential, error)
	// FindAllByUser returns the pool in stable creation order.
	FindAllByUser(ctx context.Context, qx any, userID string) ([]*model.APICredential, error)
	MarkQuotaExceeded(ctx context.Context, qx any, id string, at time.Time) error
	ClearQuotaExceeded(ctx context.Context, qx any, id string) error
	TouchLastUsed(ctx context.Context, qx any, id string, at time.Time) error
	Delete(ctx context.Context, qx any, id string) error
}
