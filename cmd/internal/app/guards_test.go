package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-test/deep"
)

func TestParseGuards(t *testing.T) {
	doc := `
default: web
guards:
  web:
    driver: session
    tokens: redis
    remember_me_ttl: 720h
  admin:
    driver: session
    tokens: none
  api:
    driver: access_tokens
    tokens: postgres
    token_table: api_tokens
    token_bytes: 48
  basic:
    driver: basic_auth
    realm: Admin
`
	gf, err := ParseGuards([]byte(doc))
	if err != nil {
		t.Fatalf("ParseGuards: %v", err)
	}
	want := GuardsFile{
		Default: "web",
		Guards: map[string]GuardConfig{
			"web":   {Driver: "session", Tokens: BackendRedis, RememberMeTTL: 720 * time.Hour},
			"admin": {Driver: "session", Tokens: BackendNone},
			"api":   {Driver: "access_tokens", Tokens: BackendPostgres, TokenTable: "api_tokens", TokenBytes: 48},
			"basic": {Driver: "basic_auth", Realm: "Admin"},
		},
	}
	if diff := deep.Equal(gf, want); diff != nil {
		t.Fatalf("parsed guards differ: %v", diff)
	}
	if diff := deep.Equal(gf.Names(), []string{"admin", "api", "basic", "web"}); diff != nil {
		t.Fatalf("Names: %v", diff)
	}
}

func TestParseGuards_Rejects(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{name: "empty", doc: ``},
		{name: "unknown key", doc: "default: web\nguards:\n  web:\n    driver: session\n    ttl: 1h\n"},
		{name: "missing default", doc: "default: web\nguards:\n  api:\n    driver: access_tokens\n"},
		{name: "unknown driver", doc: "default: web\nguards:\n  web:\n    driver: jwt\n"},
		{name: "unknown backend", doc: "default: web\nguards:\n  web:\n    driver: session\n    tokens: mongo\n"},
		{name: "access without tokens", doc: "default: api\nguards:\n  api:\n    driver: access_tokens\n    tokens: none\n"},
		{name: "basic with tokens", doc: "default: b\nguards:\n  b:\n    driver: basic_auth\n    tokens: memory\n"},
		{name: "short tokens", doc: "default: api\nguards:\n  api:\n    driver: access_tokens\n    token_bytes: 8\n"},
		{name: "bad duration", doc: "default: web\nguards:\n  web:\n    driver: session\n    remember_me_ttl: soon\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseGuards([]byte(tc.doc)); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestLoadGuards(t *testing.T) {
	gf, err := LoadGuards("")
	if err != nil {
		t.Fatalf("LoadGuards(\"\"): %v", err)
	}
	if diff := deep.Equal(gf, DefaultGuards()); diff != nil {
		t.Fatalf("default guards differ: %v", diff)
	}

	path := filepath.Join(t.TempDir(), "guards.yaml")
	if err := os.WriteFile(path, []byte("default: api\nguards:\n  api:\n    driver: access_tokens\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	gf, err = LoadGuards(path)
	if err != nil {
		t.Fatalf("LoadGuards: %v", err)
	}
	if gf.Default != "api" || len(gf.Guards) != 1 {
		t.Fatalf("unexpected guards %+v", gf)
	}

	if _, err := LoadGuards(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
