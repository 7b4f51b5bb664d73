package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-test/deep"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if diff := deep.Equal(cfg, DefaultConfig()); diff != nil {
		t.Fatalf("defaults differ: %v", diff)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("WARDEN_API_ME_GUARDS", "api;basic")
	t.Setenv("WARDEN_AUTH_LOGIN_IP_WINDOW", "90s")
	t.Setenv("WARDEN_AUTH_TRUST_PROXY", "true")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if diff := deep.Equal(cfg.MeGuards, []string{"api", "basic"}); diff != nil {
		t.Fatalf("me guards: %v", diff)
	}
	if cfg.LoginIPWindow != 90*time.Second || !cfg.TrustProxy {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadConfigFromEnv_CookieGuardrails(t *testing.T) {
	t.Setenv("WARDEN_COOKIE_SAMESITE", "none")
	t.Setenv("WARDEN_COOKIE_SECURE", "false")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if !cfg.CookieSecure {
		t.Fatalf("SameSite=None requires Secure=true")
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("WARDEN_AUTH_LOGIN_IP_WINDOW", "soon")
	if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestParseSameSite(t *testing.T) {
	tests := []struct {
		in   string
		want http.SameSite
	}{
		{in: "strict", want: http.SameSiteStrictMode},
		{in: "lax", want: http.SameSiteLaxMode},
		{in: "none", want: http.SameSiteNoneMode},
		{in: "default", want: http.SameSiteDefaultMode},
		{in: "unknown", want: http.SameSiteLaxMode},
	}

	for _, tc := range tests {
		got := parseSameSite(tc.in)
		if got != tc.want {
			t.Fatalf("parseSameSite(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}
