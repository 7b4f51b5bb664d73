package audit

import (
	"context"
	"testing"
	"time"

	"warden/cmd/internal/pgtest"
)

func TestPostgresWriter_Write(t *testing.T) {
	pool := pgtest.Open(t)
	schema := pgtest.Schema(t, pool)
	ctx := context.Background()

	w := NewPostgresWriter(pool, schema)
	if err := w.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	uid := "u1"
	recs := []Record{
		{ID: "01J0000000000000000000000A", Action: "session_auth:login_succeeded", Guard: "web", UserID: &uid, CreatedAt: time.Now().UTC()},
		{ID: "01J0000000000000000000000B", Action: "basic_auth:authentication_failed", Guard: "basic", Meta: map[string]string{"reason": "unknown uid"}, CreatedAt: time.Now().UTC()},
	}
	if err := w.Write(ctx, recs); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Replays are ignored.
	if err := w.Write(ctx, recs[:1]); err != nil {
		t.Fatalf("Write replay: %v", err)
	}

	var n int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM `+w.table()).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
	var reason string
	if err := pool.QueryRow(ctx, `SELECT meta->>'reason' FROM `+w.table()+` WHERE guard = 'basic'`).Scan(&reason); err != nil {
		t.Fatalf("meta: %v", err)
	}
	if reason != "unknown uid" {
		t.Fatalf("reason = %q", reason)
	}
}
