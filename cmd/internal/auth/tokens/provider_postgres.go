package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/thejerf/abtime"
)

// Default table names per kind.
const (
	RememberMeTable   = "remember_me_tokens"
	AccessTokensTable = "auth_access_tokens"
)

// PostgresProvider stores tokens of one kind in a relational table:
//
//	(series TEXT PRIMARY KEY, user_id, hash, type, guard, meta JSONB,
//	 created_at, updated_at, expires_at NULL)
//
// Expired rows are hidden on read and left in place.
type PostgresProvider struct {
	pool   *pgxpool.Pool
	schema string
	table  string
	kind   Kind
	clock  abtime.AbstractTime
}

var _ RelationalProvider = (*PostgresProvider)(nil)

// PostgresOption configures the provider.
type PostgresOption func(*PostgresProvider) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func pgOptIdent(what, v string, dst *string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("tokens: empty %s", what)
	}
	if !pgIdentRe.MatchString(v) {
		return fmt.Errorf("tokens: invalid %s identifier", what)
	}
	*dst = v
	return nil
}

// WithSchema sets the schema (default "warden").
func WithSchema(schema string) PostgresOption {
	return func(p *PostgresProvider) error { return pgOptIdent("schema", schema, &p.schema) }
}

// WithTable overrides the table name.
func WithTable(table string) PostgresOption {
	return func(p *PostgresProvider) error { return pgOptIdent("table", table, &p.table) }
}

// WithPostgresClock sets the clock used for the lazy expiry check.
func WithPostgresClock(clock abtime.AbstractTime) PostgresOption {
	return func(p *PostgresProvider) error {
		if clock == nil {
			return fmt.Errorf("tokens: nil clock")
		}
		p.clock = clock
		return nil
	}
}

func NewPostgresProvider(pool *pgxpool.Pool, kind Kind, opts ...PostgresOption) (*PostgresProvider, error) {
	p := &PostgresProvider{
		pool:   pool,
		schema: "warden",
		table:  defaultTable(kind),
		kind:   kind,
		clock:  abtime.NewRealTime(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.pool == nil {
		return nil, fmt.Errorf("tokens: nil pool")
	}
	return p, nil
}

func defaultTable(kind Kind) string {
	if kind == KindRememberMe {
		return RememberMeTable
	}
	return AccessTokensTable
}

func (p *PostgresProvider) ident() string {
	return pgx.Identifier{p.schema, p.table}.Sanitize()
}

// Migrate creates the schema, table and user index when missing.
func (p *PostgresProvider) Migrate(ctx context.Context) error {
	tbl := p.ident()
	idx := pgx.Identifier{"idx_" + p.table + "_user_id"}.Sanitize()
	_, err := p.pool.Exec(ctx, `
CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{p.schema}.Sanitize()+`;

CREATE TABLE IF NOT EXISTS `+tbl+` (
  series TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  hash TEXT NOT NULL,
  type TEXT NOT NULL,
  guard TEXT NOT NULL,
  meta JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  expires_at TIMESTAMPTZ NULL
);

CREATE INDEX IF NOT EXISTS `+idx+` ON `+tbl+` (user_id, type);`)
	if err != nil {
		return fmt.Errorf("tokens: migrate %s: %w", p.table, err)
	}
	return nil
}

func (p *PostgresProvider) CreateToken(ctx context.Context, t *Token) error {
	if err := validateForCreate(t, p.kind); err != nil {
		return err
	}

	var meta any
	if len(t.Meta) > 0 {
		b, err := json.Marshal(t.Meta)
		if err != nil {
			return fmt.Errorf("tokens: encode meta: %w", err)
		}
		meta = string(b)
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO `+p.ident()+` (
		     series, user_id, hash, type, guard, meta, created_at, updated_at, expires_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.Series,
		t.UserID,
		t.Hash,
		string(p.kind),
		t.Guard,
		meta,
		t.CreatedAt,
		t.UpdatedAt,
		t.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSeries
		}
		return fmt.Errorf("tokens: insert: %w", err)
	}
	return nil
}

func (p *PostgresProvider) TokenBySeries(ctx context.Context, series string) (*Token, error) {
	var (
		t    Token
		kind string
		meta []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT series, user_id, hash, type, guard, meta, created_at, updated_at, expires_at
		   FROM `+p.ident()+`
		  WHERE series = $1 AND type = $2`,
		series, string(p.kind),
	).Scan(&t.Series, &t.UserID, &t.Hash, &kind, &t.Guard, &meta, &t.CreatedAt, &t.UpdatedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("tokens: select: %w", err)
	}
	t.Kind = Kind(kind)

	if t.ExpiresAt != nil && p.clock.Now().After(*t.ExpiresAt) {
		return nil, nil
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Meta); err != nil {
			return nil, fmt.Errorf("tokens: decode meta: %w", err)
		}
	}
	return &t, nil
}

func (p *PostgresProvider) DeleteToken(ctx context.Context, series string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM `+p.ident()+` WHERE series = $1 AND type = $2`,
		series, string(p.kind),
	)
	if err != nil {
		return fmt.Errorf("tokens: delete: %w", err)
	}
	return nil
}

func (p *PostgresProvider) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	ct, err := p.pool.Exec(ctx,
		`DELETE FROM `+p.ident()+` WHERE user_id = $1 AND type = $2`,
		userID, string(p.kind),
	)
	if err != nil {
		return 0, fmt.Errorf("tokens: delete for user: %w", err)
	}
	return ct.RowsAffected(), nil
}

// PhysicalCount counts stored rows for series, ignoring expiry.
func (p *PostgresProvider) PhysicalCount(ctx context.Context, series string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+p.ident()+` WHERE series = $1`, series,
	).Scan(&n)
	return n, err
}
