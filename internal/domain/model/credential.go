package model

import (
	"fmt"
	"strings"
	"time"

	"persona-ai-chat/internal/domain"
)

// QuotaCooldown is how long a quota-exhausted credential stays out of
// rotation before it is considered again.
const QuotaCooldown = time.Hour

// APICredential is one member of a user's provider key pool. Secret is
// plaintext in memory; the repository encrypts it at rest.
type APICredential struct {
	ID              string
	UserID          string
	Secret          string
	DisplayName     string
	IsActive        bool
	QuotaExceededAt *time.Time
	LastUsedAt      time.Time
	CreatedAt       time.Time
}

func NewAPICredential(id, userID, secret, displayName string) (*APICredential, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: credential secret is empty", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = "key-" + id[:minInt(8, len(id))]
	}
	return &APICredential{
		ID:          id,
		UserID:      userID,
		Secret:      secret,
		DisplayName: displayName,
		IsActive:    true,
		CreatedAt:   time.Now(),
	}, nil
}

// Eligible reports whether the credential may be selected at now.
// A quota flag older than the cooldown no longer disqualifies it; the
// caller clears the stale flag as a side effect of considering it.
func (c *APICredential) Eligible(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	return c.QuotaExceededAt == nil || c.CooldownExpired(now)
}

// CooldownExpired reports whether a set quota flag has aged out.
func (c *APICredential) CooldownExpired(now time.Time) bool {
	return c.QuotaExceededAt != nil && now.Sub(*c.QuotaExceededAt) >= QuotaCooldown
}

func (c *APICredential) MarkQuotaExceeded(now time.Time) {
	t := now
	c.QuotaExceededAt = &t
}

func (c *APICredential) ClearQuotaFlag() {
	c.QuotaExceededAt = nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
