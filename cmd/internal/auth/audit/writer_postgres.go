package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresWriter appends records to "<schema>.audit_log".
type PostgresWriter struct {
	pool   *pgxpool.Pool
	schema string
}

var _ Writer = (*PostgresWriter)(nil)

func NewPostgresWriter(pool *pgxpool.Pool, schema string) *PostgresWriter {
	if schema == "" {
		schema = "warden"
	}
	return &PostgresWriter{pool: pool, schema: schema}
}

func (p *PostgresWriter) table() string {
	return pgx.Identifier{p.schema, "audit_log"}.Sanitize()
}

func (p *PostgresWriter) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{p.schema}.Sanitize()+`;

CREATE TABLE IF NOT EXISTS `+p.table()+` (
  id TEXT PRIMARY KEY,
  action TEXT NOT NULL,
  guard TEXT NOT NULL,
  user_id TEXT NULL,
  ip TEXT NULL,
  user_agent TEXT NULL,
  meta JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_log_user_idx ON `+p.table()+` (user_id, created_at);`)
	if err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

func (p *PostgresWriter) Write(ctx context.Context, recs []Record) error {
	b := &pgx.Batch{}
	for _, r := range recs {
		if r.ID == "" {
			continue
		}
		var meta *string
		if len(r.Meta) > 0 {
			if raw, err := json.Marshal(r.Meta); err == nil {
				s := string(raw)
				meta = &s
			}
		}
		b.Queue(`
			INSERT INTO `+p.table()+` (id, action, guard, user_id, ip, user_agent, meta, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Action, r.Guard, r.UserID, r.IP, r.UserAgent, meta, r.CreatedAt)
	}
	if b.Len() == 0 {
		return nil
	}
	return p.pool.SendBatch(ctx, b).Close()
}
