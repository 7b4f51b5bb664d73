package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/thejerf/abtime"
)

// PostgresBackend implements Backend over a "<schema>.session_data" table,
// one row per (session id, key).
type PostgresBackend struct {
	pool   *pgxpool.Pool
	schema string
	clock  abtime.AbstractTime
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend creates a Postgres-backed session backend.
func NewPostgresBackend(pool *pgxpool.Pool, schema string, clock abtime.AbstractTime) *PostgresBackend {
	if schema == "" {
		schema = "warden"
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &PostgresBackend{pool: pool, schema: schema, clock: clock}
}

func (s *PostgresBackend) table() string {
	return pgx.Identifier{s.schema, "session_data"}.Sanitize()
}

// Migrate creates the session_data table when missing.
func (s *PostgresBackend) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{s.schema}.Sanitize()+`;

CREATE TABLE IF NOT EXISTS `+s.table()+` (
  id TEXT NOT NULL,
  key TEXT NOT NULL,
  value TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  expires_at TIMESTAMPTZ NULL,
  PRIMARY KEY (id, key)
);`)
	if err != nil {
		return fmt.Errorf("session: migrate: %w", err)
	}
	return nil
}

// Get loads one key of a live session.
func (s *PostgresBackend) Get(ctx context.Context, id, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx, `
		SELECT value
		  FROM `+s.table()+`
		 WHERE id = $1 AND key = $2
		   AND (expires_at IS NULL OR expires_at > $3)
	`, id, key, s.clock.Now()).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Put upserts key and slides the expiry of the whole session.
func (s *PostgresBackend) Put(ctx context.Context, id, key, value string, ttl time.Duration) error {
	now := s.clock.Now()
	var expiresAt *time.Time
	if ttl > 0 {
		at := now.Add(ttl)
		expiresAt = &at
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Rows of an expired session must not come back to life with the new key.
	if _, err := tx.Exec(ctx, `
		DELETE FROM `+s.table()+`
		 WHERE id = $1 AND expires_at IS NOT NULL AND expires_at <= $2
	`, id, now); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO `+s.table()+` (id, key, value, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id, key) DO UPDATE
		   SET value = EXCLUDED.value,
		       updated_at = EXCLUDED.updated_at
	`, id, key, value, now, expiresAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE `+s.table()+` SET expires_at = $2 WHERE id = $1
	`, id, expiresAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Forget deletes one key (idempotent).
func (s *PostgresBackend) Forget(ctx context.Context, id, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE id = $1 AND key = $2`, id, key)
	return err
}

// Destroy deletes every key of a session (idempotent).
func (s *PostgresBackend) Destroy(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE id = $1`, id)
	return err
}

// Sweep deletes expired rows and reports how many were removed.
func (s *PostgresBackend) Sweep(ctx context.Context) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table()+` WHERE expires_at IS NOT NULL AND expires_at <= $1
	`, s.clock.Now())
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
