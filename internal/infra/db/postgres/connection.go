package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

// NewPgxPool connects with a bounded pool size and a short dial timeout.
func NewPgxPool(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(dialCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool connect: %w", err)
	}
	return pool, nil
}

// Migrate creates the schema when absent. The records are flat rows; no
// cross-table transactional guarantees are relied on beyond per-statement
// atomicity.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const schema = `
CREATE TABLE IF NOT EXISTS conversations (
  id                   TEXT PRIMARY KEY,
  user_id              TEXT NOT NULL,
  title                TEXT NOT NULL DEFAULT '',
  title_edited         BOOLEAN NOT NULL DEFAULT FALSE,
  persona_name         TEXT NOT NULL DEFAULT '',
  persona_instructions TEXT NOT NULL DEFAULT '',
  user_note            TEXT NOT NULL DEFAULT '',
  model                TEXT NOT NULL DEFAULT '',
  context_summary      TEXT NOT NULL DEFAULT '',
  summary_checkpoint   INTEGER NOT NULL DEFAULT 0,
  created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations (user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
  conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
  idx             INTEGER NOT NULL,
  role            TEXT NOT NULL,
  content         TEXT NOT NULL,
  tokens          INTEGER NOT NULL DEFAULT 0,
  created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (conversation_id, idx)
);

CREATE TABLE IF NOT EXISTS lorebook_entries (
  id         TEXT PRIMARY KEY,
  user_id    TEXT NOT NULL,
  keywords   TEXT[] NOT NULL,
  content    TEXT NOT NULL,
  enabled    BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_lorebook_user ON lorebook_entries (user_id);

CREATE TABLE IF NOT EXISTS api_credentials (
  id                TEXT PRIMARY KEY,
  user_id           TEXT NOT NULL,
  secret_enc        TEXT NOT NULL,
  display_name      TEXT NOT NULL DEFAULT '',
  is_active         BOOLEAN NOT NULL DEFAULT TRUE,
  quota_exceeded_at TIMESTAMPTZ,
  last_used_at      TIMESTAMPTZ,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_credentials_user ON api_credentials (user_id, created_at);

CREATE TABLE IF NOT EXISTS user_settings (
  user_id              TEXT PRIMARY KEY,
  pinned_credential_id TEXT NOT NULL DEFAULT '',
  reply_length         TEXT NOT NULL DEFAULT 'medium',
  thinking_effort      TEXT NOT NULL DEFAULT 'off',
  lorebook_cap         INTEGER NOT NULL DEFAULT 3,
  language             TEXT NOT NULL DEFAULT 'en'
);`
	_, err := pool.Exec(ctx, schema)
	return err
}
