package identity

import (
	"context"
	"testing"
)

func TestMemoryProvider_FindByUID_OrderedColumns(t *testing.T) {
	p, err := NewMemoryProvider(testHasher(), nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	p.Add(User{ID: "1", Email: strp("a@b.com"), Username: strp("alice")})
	p.Add(User{ID: "2", Email: strp("c@d.com"), Username: strp("bob")})

	ctx := context.Background()
	cases := []struct {
		uid    string
		wantID string
	}{
		{"a@b.com", "1"},
		{"A@B.COM ", "1"},
		{"bob", "2"},
		{"alice", "1"},
		{"nomatch", ""},
		{"", ""},
	}
	for _, tc := range cases {
		u, err := p.FindByUID(ctx, tc.uid)
		if err != nil {
			t.Fatalf("FindByUID(%q): %v", tc.uid, err)
		}
		switch {
		case tc.wantID == "" && u != nil:
			t.Fatalf("FindByUID(%q): expected nil, got %s", tc.uid, u.ID())
		case tc.wantID != "" && (u == nil || u.ID() != tc.wantID):
			t.Fatalf("FindByUID(%q): expected %s, got %v", tc.uid, tc.wantID, u)
		}
	}
}

func TestMemoryProvider_FindByUID_FirstColumnWins(t *testing.T) {
	// User 2's username collides with user 1's email; email is searched first.
	p, err := NewMemoryProvider(testHasher(), []string{UIDEmail, UIDUsername})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	p.Add(User{ID: "1", Email: strp("x@y.z")})
	p.Add(User{ID: "2", Username: strp("x@y.z")})

	u, err := p.FindByUID(context.Background(), "x@y.z")
	if err != nil || u == nil || u.ID() != "1" {
		t.Fatalf("expected user 1, got %v err=%v", u, err)
	}

	p2, _ := NewMemoryProvider(testHasher(), []string{UIDUsername})
	p2.Add(User{ID: "1", Email: strp("x@y.z")})
	if u, _ := p2.FindByUID(context.Background(), "x@y.z"); u != nil {
		t.Fatalf("email must not be searched when not configured")
	}
}

func TestMemoryProvider_CreateUserAndVerify(t *testing.T) {
	p, _ := NewMemoryProvider(testHasher(), nil)
	ctx := context.Background()

	res, err := p.CreateUser(ctx, CreateUserInput{Email: strp("Dev@Example.com"), Password: "hunter22"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if len(res.User.ID) != 26 {
		t.Fatalf("expected ulid id, got %q", res.User.ID)
	}

	u, err := p.FindByID(ctx, res.User.ID)
	if err != nil || u == nil {
		t.Fatalf("FindByID: %v %v", u, err)
	}
	if ok, err := u.VerifyPassword("hunter22"); err != nil || !ok {
		t.Fatalf("expected password match, ok=%v err=%v", ok, err)
	}
	if ok, _ := u.VerifyPassword("hunter23"); ok {
		t.Fatalf("expected mismatch")
	}

	_, err = p.CreateUser(ctx, CreateUserInput{Email: strp("dev@example.COM"), Password: "another1"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := p.CreateUser(ctx, CreateUserInput{Password: "x"}); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestMemoryProvider_FindByID_Missing(t *testing.T) {
	p, _ := NewMemoryProvider(testHasher(), nil)
	u, err := p.FindByID(context.Background(), "ghost")
	if err != nil || u != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", u, err)
	}
}

func TestMemoryProvider_CreateUserForGuard(t *testing.T) {
	p, _ := NewMemoryProvider(testHasher(), nil)

	u, err := p.CreateUserForGuard(&User{ID: "7", Username: strp("neo")})
	if err != nil || u.ID() != "7" {
		t.Fatalf("expected wrapped user, got %v err=%v", u, err)
	}
	rec, ok := As[User](u)
	if !ok || *rec.Username != "neo" {
		t.Fatalf("As[User] failed: %+v %v", rec, ok)
	}

	for _, raw := range []any{nil, (*User)(nil), "7", map[string]any{"id": "7"}, User{}} {
		if _, err := p.CreateUserForGuard(raw); !IsInvalidUserObject(err) {
			t.Fatalf("CreateUserForGuard(%#v): expected ErrInvalidUserObject, got %v", raw, err)
		}
	}
}

func TestNewMemoryProvider_UnknownUID(t *testing.T) {
	if _, err := NewMemoryProvider(testHasher(), []string{"phone"}); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
