package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"persona-ai-chat/internal/domain"
	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/repository"
)

var _ repository.LorebookRepository = (*LorebookRepo)(nil)

type LorebookRepo struct {
	pool *pgxpool.Pool
}

func NewLorebookRepo(pool *pgxpool.Pool) *LorebookRepo {
	return &LorebookRepo{pool: pool}
}

func (r *LorebookRepo) Save(ctx context.Context, qx any, e *model.LorebookEntry) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO lorebook_entries (id, user_id, keywords, content, enabled, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,COALESCE($6,NOW()),COALESCE($7,NOW()))
ON CONFLICT (id) DO UPDATE SET
  keywords = EXCLUDED.keywords,
  content = EXCLUDED.content,
  enabled = EXCLUDED.enabled,
  updated_at = EXCLUDED.updated_at;`
	_, err = ex.Exec(ctx, q, e.ID, e.UserID, e.Keywords, e.Content, e.Enabled, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save lorebook entry: %w", err)
	}
	return nil
}

func (r *LorebookRepo) FindByID(ctx context.Context, qx any, id string) (*model.LorebookEntry, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, user_id, keywords, content, enabled, created_at, updated_at
FROM lorebook_entries WHERE id=$1;`
	var e model.LorebookEntry
	err = ex.QueryRow(ctx, q, id).Scan(&e.ID, &e.UserID, &e.Keywords, &e.Content, &e.Enabled, &e.CreatedAt, &e.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find lorebook entry: %w", err)
	}
	return &e, nil
}

func (r *LorebookRepo) FindAllByUser(ctx context.Context, qx any, userID string) ([]*model.LorebookEntry, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, user_id, keywords, content, enabled, created_at, updated_at
FROM lorebook_entries WHERE user_id=$1 ORDER BY updated_at DESC;`
	rows, err := ex.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list lorebook entries: %w", err)
	}
	defer rows.Close()

	var out []*model.LorebookEntry
	for rows.Next() {
		var e model.LorebookEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Keywords, &e.Content, &e.Enabled, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *LorebookRepo) Delete(ctx context.Context, qx any, id string) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `DELETE FROM lorebook_entries WHERE id=$1;`, id)
	if err != nil {
		return fmt.Errorf("delete lorebook entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
