package identity

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"warden/cmd/internal/pgtest"
)

// Integration tests are opt-in; see package pgtest for how a database is found.

func mustNewProvider(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresProvider {
	t.Helper()
	p, err := NewPostgresProvider(pool, testHasher(), WithSchema(schema))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return p
}

func TestPostgresProvider_FindByUID(t *testing.T) {
	t.Parallel()

	pool := pgtest.Open(t)
	p := mustNewProvider(t, pool, pgtest.Schema(t, pool))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	alice, err := p.CreateUser(ctx, CreateUserInput{Email: strp("a@b.com"), Username: strp("alice"), Password: "alice-pass"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := p.CreateUser(ctx, CreateUserInput{Email: strp("c@d.com"), Username: strp("bob"), Password: "bob-pass"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	u, err := p.FindByUID(ctx, "a@b.com")
	if err != nil || u == nil || u.ID() != alice.User.ID {
		t.Fatalf("FindByUID(a@b.com) = %v, %v", u, err)
	}
	u, err = p.FindByUID(ctx, "BOB")
	if err != nil || u == nil || u.ID() != bob.User.ID {
		t.Fatalf("FindByUID(BOB) = %v, %v", u, err)
	}
	u, err = p.FindByUID(ctx, "nomatch")
	if err != nil || u != nil {
		t.Fatalf("FindByUID(nomatch) = %v, %v", u, err)
	}

	if ok, err := mustFind(ctx, t, p, bob.User.ID).VerifyPassword("bob-pass"); err != nil || !ok {
		t.Fatalf("expected bob's password to verify, ok=%v err=%v", ok, err)
	}
}

func mustFind(ctx context.Context, t *testing.T, p *PostgresProvider, id string) GuardUser {
	t.Helper()
	u, err := p.FindByID(ctx, id)
	if err != nil || u == nil {
		t.Fatalf("FindByID(%s) = %v, %v", id, u, err)
	}
	return u
}

func TestPostgresProvider_FindByID_Missing(t *testing.T) {
	t.Parallel()

	pool := pgtest.Open(t)
	p := mustNewProvider(t, pool, pgtest.Schema(t, pool))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, _ := NewULID(time.Now())
	for _, probe := range []string{id, "not-a-ulid", ""} {
		u, err := p.FindByID(ctx, probe)
		if err != nil || u != nil {
			t.Fatalf("FindByID(%q) = %v, %v", probe, u, err)
		}
	}
}

func TestPostgresProvider_CreateUser_ConflictCaseInsensitive(t *testing.T) {
	t.Parallel()

	pool := pgtest.Open(t)
	p := mustNewProvider(t, pool, pgtest.Schema(t, pool))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := p.CreateUser(ctx, CreateUserInput{Username: strp("Navid"), Password: "very-strong-password-1"}); err != nil {
		t.Fatalf("create user 1: %v", err)
	}
	_, err := p.CreateUser(ctx, CreateUserInput{Username: strp("nAvId"), Password: "very-strong-password-2"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}

	if _, err := p.CreateUser(ctx, CreateUserInput{Email: strp("User@Example.com"), Password: "very-strong-password-3"}); err != nil {
		t.Fatalf("create user 3: %v", err)
	}
	_, err = p.CreateUser(ctx, CreateUserInput{Email: strp("user@example.COM"), Password: "very-strong-password-4"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestNewPostgresProvider_Options(t *testing.T) {
	if _, err := NewPostgresProvider(nil, testHasher()); err == nil {
		t.Fatalf("expected nil pool error")
	}
	pool := &pgxpool.Pool{}
	if _, err := NewPostgresProvider(pool, testHasher(), WithSchema("bad-name;")); err == nil {
		t.Fatalf("expected invalid schema error")
	}
	if _, err := NewPostgresProvider(pool, testHasher(), WithUIDs()); err == nil {
		t.Fatalf("expected empty uid list error")
	}
	if _, err := NewPostgresProvider(pool, nil); err == nil {
		t.Fatalf("expected nil hasher error")
	}
}
