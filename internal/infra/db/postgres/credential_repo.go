package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"persona-ai-chat/internal/domain"
	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/repository"
	"persona-ai-chat/internal/infra/security"
)

var _ repository.CredentialRepository = (*CredentialRepo)(nil)

// CredentialRepo stores the provider key pool with secrets encrypted at
// rest. Flag updates are single idempotent statements keyed by id.
type CredentialRepo struct {
	pool          *pgxpool.Pool
	encryptionSvc *security.EncryptionService
}

func NewCredentialRepo(pool *pgxpool.Pool, encryptionSvc *security.EncryptionService) *CredentialRepo {
	return &CredentialRepo{pool: pool, encryptionSvc: encryptionSvc}
}

func (r *CredentialRepo) Save(ctx context.Context, qx any, c *model.APICredential) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	secretEnc, err := r.encryptionSvc.Encrypt(c.Secret)
	if err != nil {
		return fmt.Errorf("encrypt secret: %w", err)
	}
	const q = `
INSERT INTO api_credentials (id, user_id, secret_enc, display_name, is_active, quota_exceeded_at, last_used_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,COALESCE($8,NOW()))
ON CONFLICT (id) DO UPDATE SET
  secret_enc = EXCLUDED.secret_enc,
  display_name = EXCLUDED.display_name,
  is_active = EXCLUDED.is_active,
  quota_exceeded_at = EXCLUDED.quota_exceeded_at,
  last_used_at = EXCLUDED.last_used_at;`
	var lastUsed *time.Time
	if !c.LastUsedAt.IsZero() {
		lastUsed = &c.LastUsedAt
	}
	_, err = ex.Exec(ctx, q, c.ID, c.UserID, secretEnc, c.DisplayName, c.IsActive, c.QuotaExceededAt, lastUsed, c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (r *CredentialRepo) FindByID(ctx context.Context, qx any, id string) (*model.APICredential, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, user_id, secret_enc, display_name, is_active, quota_exceeded_at, last_used_at, created_at
FROM api_credentials WHERE id=$1;`
	c, err := r.scanOne(ex.QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CredentialRepo) FindAllByUser(ctx context.Context, qx any, userID string) ([]*model.APICredential, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, user_id, secret_enc, display_name, is_active, quota_exceeded_at, last_used_at, created_at
FROM api_credentials WHERE user_id=$1 ORDER BY created_at;`
	rows, err := ex.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []*model.APICredential
	for rows.Next() {
		c, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CredentialRepo) scanOne(row pgx.Row) (*model.APICredential, error) {
	var c model.APICredential
	var secretEnc string
	var lastUsed *time.Time
	err := row.Scan(&c.ID, &c.UserID, &secretEnc, &c.DisplayName, &c.IsActive, &c.QuotaExceededAt, &lastUsed, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	if lastUsed != nil {
		c.LastUsedAt = *lastUsed
	}
	c.Secret, err = r.encryptionSvc.Decrypt(secretEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}
	return &c, nil
}

func (r *CredentialRepo) MarkQuotaExceeded(ctx context.Context, qx any, id string, at time.Time) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, `UPDATE api_credentials SET quota_exceeded_at=$2 WHERE id=$1;`, id, at)
	return err
}

func (r *CredentialRepo) ClearQuotaExceeded(ctx context.Context, qx any, id string) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, `UPDATE api_credentials SET quota_exceeded_at=NULL WHERE id=$1;`, id)
	return err
}

func (r *CredentialRepo) TouchLastUsed(ctx context.Context, qx any, id string, at time.Time) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, `UPDATE api_credentials SET last_used_at=$2 WHERE id=$1;`, id, at)
	return err
}

func (r *CredentialRepo) Delete(ctx context.Context, qx any, id string) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `DELETE FROM api_credentials WHERE id=$1;`, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
