package session

import (
	"context"
	"testing"
	"time"

	"github.com/thejerf/abtime"

	"warden/cmd/internal/pgtest"
)

func TestPostgresBackend_Contract(t *testing.T) {
	pool := pgtest.Open(t)
	schema := pgtest.Schema(t, pool)

	clock := abtime.NewManualAtTime(epoch)
	b := NewPostgresBackend(pool, schema, clock)
	if err := b.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	backendContract(t, b, clock.Advance)
}

func TestPostgresBackend_Sweep(t *testing.T) {
	pool := pgtest.Open(t)
	schema := pgtest.Schema(t, pool)
	ctx := context.Background()

	clock := abtime.NewManualAtTime(epoch)
	b := NewPostgresBackend(pool, schema, clock)
	if err := b.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	s := NewSessions(b, time.Minute)
	for _, id := range []string{"a", "b"} {
		if err := s.Open(id).Put(ctx, "k", "v"); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	clock.Advance(2 * time.Minute)
	if err := s.Open("c").Put(ctx, "k", "v"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	n, err := b.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("swept %d rows, want 2", n)
	}
	if _, ok, _ := s.Open("c").Get(ctx, "k"); !ok {
		t.Fatalf("live session swept")
	}
}
