package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"warden/cmd/identity/ids"
	"warden/cmd/security/password"
)

// PostgresProvider implements UserProvider over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this provider must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - UID lookups use the *_norm columns so matching is case-insensitive.
type PostgresProvider struct {
	pool   *pgxpool.Pool
	schema string
	uids   []string
	hasher password.Hasher
}

var _ UserProvider = (*PostgresProvider)(nil)

// PostgresOption configures the provider.
type PostgresOption func(*PostgresProvider) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the provider (default "warden").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresProvider) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithUIDs sets the ordered UID columns searched by FindByUID.
func WithUIDs(cols ...string) PostgresOption {
	return func(s *PostgresProvider) error {
		if err := validUIDs(cols); err != nil {
			return err
		}
		s.uids = append([]string(nil), cols...)
		return nil
	}
}

// NewPostgresProvider constructs a PostgresProvider with secure defaults.
func NewPostgresProvider(pool *pgxpool.Pool, hasher password.Hasher, opts ...PostgresOption) (*PostgresProvider, error) {
	p := &PostgresProvider{
		pool:   pool,
		schema: "warden",
		uids:   DefaultUIDs,
		hasher: hasher,
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
		return nil, fmt.Errorf("identity: nil pool")
	}
	if p.hasher == nil {
		return nil, fmt.Errorf("identity: nil password hasher")
	}
	return p, nil
}

// Migrate creates the users and user_credentials tables when missing.
func (s *PostgresProvider) Migrate(ctx context.Context) error {
	users := pgIdent(s.schema, "users")
	creds := pgIdent(s.schema, "user_credentials")

	_, err := s.pool.Exec(ctx, `
CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{s.schema}.Sanitize()+`;

CREATE TABLE IF NOT EXISTS `+users+` (
  id TEXT PRIMARY KEY,
  username TEXT NULL,
  username_norm TEXT NULL,
  email TEXT NULL,
  email_norm TEXT NULL,
  display_name TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_users_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_users_username_norm UNIQUE (username_norm),
  CONSTRAINT uq_users_email_norm UNIQUE (email_norm)
);

CREATE TABLE IF NOT EXISTS `+creds+` (
  user_id TEXT PRIMARY KEY REFERENCES `+users+`(id) ON DELETE CASCADE,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	if err != nil {
		return fmt.Errorf("identity: migrate: %w", err)
	}
	return nil
}

// CreateUser creates a new user and its credentials transactionally.
func (s *PostgresProvider) CreateUser(ctx context.Context, in CreateUserInput) (CreateUserResult, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return CreateUserResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil provider"}
	}
	if err := ctx.Err(); err != nil {
		return CreateUserResult{}, err
	}

	username := trimPtr(in.Username)
	email := trimPtr(in.Email)

	if username == nil && email == nil {
		return CreateUserResult{}, invalid(op, "username or email is required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return CreateUserResult{}, invalid(op, "password is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var usernameNorm *string
	if username != nil {
		n := NormalizeUsername(*username)
		usernameNorm = &n
	}
	var emailNorm *string
	if email != nil {
		n := NormalizeEmail(*email)
		emailNorm = &n
	}

	pwHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return CreateUserResult{}, invalid(op, err.Error())
	}

	userID, err := NewULID(now)
	if err != nil {
		return CreateUserResult{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return CreateUserResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")
	creds := pgIdent(s.schema, "user_credentials")

	displayName := trimPtr(in.DisplayName)
	_, err = tx.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, username, username_norm, email, email_norm, display_name, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		userID,
		username,
		usernameNorm,
		email,
		emailNorm,
		displayName,
		now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return CreateUserResult{}, ConflictError{Op: op, Field: field}
		}
		return CreateUserResult{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+creds+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		userID, pwHash, now,
	)
	if err != nil {
		return CreateUserResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return CreateUserResult{}, err
	}

	out := User{
		ID:           userID,
		Username:     username,
		UsernameNorm: usernameNorm,
		Email:        email,
		EmailNorm:    emailNorm,
		DisplayName:  displayName,
		PasswordHash: pwHash,
		CreatedAt:    now,
	}

	return CreateUserResult{User: out}, nil
}

func (s *PostgresProvider) FindByID(ctx context.Context, id string) (GuardUser, error) {
	// Anything that is not a ULID cannot satisfy chk_users_id_ulid_len.
	if !ids.Valid(id) {
		return nil, nil
	}
	u, err := s.queryUser(ctx, "u.id = $1", id)
	if err != nil || u == nil {
		return nil, err
	}
	return s.wrap(*u), nil
}

func (s *PostgresProvider) FindByUID(ctx context.Context, uid string) (GuardUser, error) {
	for _, col := range s.uids {
		want := normalizeUID(col, uid)
		if want == "" {
			continue
		}
		// col is one of the validated UID constants, never user input.
		u, err := s.queryUser(ctx, "u."+col+"_norm = $1", want)
		if err != nil {
			return nil, err
		}
		if u != nil {
			return s.wrap(*u), nil
		}
	}
	return nil, nil
}

func (s *PostgresProvider) CreateUserForGuard(raw any) (GuardUser, error) {
	u, ok := userRecord(raw)
	if !ok {
		return nil, invalidUserObject("identity.PostgresProvider.CreateUserForGuard", raw)
	}
	return s.wrap(u), nil
}

func (s *PostgresProvider) wrap(u User) GuardUser {
	return NewPrincipal(u.ID, u, u.PasswordHash, s.hasher)
}

func (s *PostgresProvider) queryUser(ctx context.Context, where string, arg string) (*User, error) {
	users := pgIdent(s.schema, "users")
	creds := pgIdent(s.schema, "user_credentials")

	var (
		u    User
		hash *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.username, u.username_norm, u.email, u.email_norm, u.display_name, u.created_at,
		        c.password_hash
		   FROM `+users+` u
		   LEFT JOIN `+creds+` c ON c.user_id = u.id
		  WHERE `+where+`
		  LIMIT 1`,
		arg,
	).Scan(&u.ID, &u.Username, &u.UsernameNorm, &u.Email, &u.EmailNorm, &u.DisplayName, &u.CreatedAt, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity: query user: %w", err)
	}
	if hash != nil {
		u.PasswordHash = *hash
	}
	return &u, nil
}

// ---- helpers ----

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_username_norm", strings.Contains(c, "username"):
		return "username", true
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
