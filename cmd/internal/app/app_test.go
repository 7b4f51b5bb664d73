package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

const (
	devUser     = "alice"
	devPassword = "Very-Strong-Password-1!"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// testEnv configures an in-memory server with cheap password hashing and
// cookies usable over plain HTTP.
func testEnv(t *testing.T) Config {
	t.Helper()
	t.Setenv("WARDEN_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("WARDEN_ARGON2_ITERATIONS", "1")
	t.Setenv("WARDEN_COOKIE_SECURE", "false")
	t.Setenv("WARDEN_DEV_USER", devUser)
	t.Setenv("WARDEN_DEV_PASSWORD", devPassword)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	return cfg
}

func newTestApp(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	a, err := New(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })

	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, c *http.Client, url string, hdr map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestApp_ProbesAndMetrics(t *testing.T) {
	ts := newTestApp(t, testEnv(t))

	resp, body := get(t, http.DefaultClient, ts.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK || body != "ok\n" {
		t.Fatalf("healthz: %d %q", resp.StatusCode, body)
	}
	if _, err := uuid.Parse(resp.Header.Get(RequestIDHeader)); err != nil {
		t.Fatalf("missing request id: %q", resp.Header.Get(RequestIDHeader))
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers")
	}

	resp, _ = get(t, http.DefaultClient, ts.URL+"/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: %d", resp.StatusCode)
	}

	cred := base64.StdEncoding.EncodeToString([]byte(devUser + ":" + devPassword))
	resp, body = get(t, http.DefaultClient, ts.URL+"/me", map[string]string{"Authorization": "Basic " + cred})
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"guard":"basic"`) {
		t.Fatalf("basic /me: %d %s", resp.StatusCode, body)
	}

	_, metrics := get(t, http.DefaultClient, ts.URL+"/metrics", nil)
	for _, want := range []string{
		`warden_auth_events_total{event="credentials_verified",family="basic_auth",guard="basic"} 1`,
		`warden_http_requests_total{class="2xx",method="GET",route="/healthz"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(metrics, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestApp_UnauthorizedMe(t *testing.T) {
	ts := newTestApp(t, testEnv(t))

	resp, body := get(t, http.DefaultClient, ts.URL+"/me", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if !strings.Contains(body, "E_UNAUTHORIZED_ACCESS") {
		t.Fatalf("unexpected body %s", body)
	}
	if got := resp.Header.Get("WWW-Authenticate"); !strings.HasPrefix(got, `Basic realm=`) {
		t.Fatalf("WWW-Authenticate = %q", got)
	}
}

func TestApp_SessionLogin(t *testing.T) {
	ts := newTestApp(t, testEnv(t))

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{Jar: jar}

	payload, _ := json.Marshal(map[string]any{"uid": devUser, "password": devPassword, "remember_me": true})
	resp, err := client.Post(ts.URL+"/auth/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status=%d", resp.StatusCode)
	}

	resp, body := get(t, client, ts.URL+"/me", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"guard":"web"`) {
		t.Fatalf("/me: %d %s", resp.StatusCode, body)
	}
}

func TestNew_RejectsMismatchedGuards(t *testing.T) {
	cfg := testEnv(t)
	path := filepath.Join(t.TempDir(), "guards.yaml")
	doc := "default: web\nguards:\n  web:\n    driver: basic_auth\n  api:\n    driver: access_tokens\n  basic:\n    driver: basic_auth\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.GuardsFile = path

	if _, err := New(context.Background(), cfg, discardLogger()); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestNew_PostgresTokensNeedDatabase(t *testing.T) {
	cfg := testEnv(t)
	path := filepath.Join(t.TempDir(), "guards.yaml")
	doc := "default: web\nguards:\n  web:\n    driver: session\n  api:\n    driver: access_tokens\n    tokens: postgres\n  basic:\n    driver: basic_auth\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.GuardsFile = path

	if _, err := New(context.Background(), cfg, discardLogger()); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestDecodeCookieKey(t *testing.T) {
	t.Parallel()

	k32 := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	k64 := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 64))
	cases := []struct {
		name    string
		raw     string
		sizes   []int
		wantLen int
		wantErr bool
	}{
		{name: "generated", raw: "", sizes: hashKeySizes, wantLen: 32},
		{name: "explicit", raw: k32, sizes: hashKeySizes, wantLen: 32},
		{name: "64 byte hash key", raw: k64, sizes: hashKeySizes, wantLen: 64},
		{name: "64 byte block key", raw: k64, sizes: blockKeySizes, wantErr: true},
		{name: "not base64", raw: "%%%", sizes: hashKeySizes, wantErr: true},
		{name: "odd length", raw: base64.StdEncoding.EncodeToString([]byte("short")), sizes: hashKeySizes, wantErr: true},
	}
	for _, tc := range cases {
		key, err := decodeCookieKey("WARDEN_COOKIE_KEY", tc.raw, 32, tc.sizes)
		if tc.wantErr {
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("%s: expected ErrConfig, got %v", tc.name, err)
			}
			continue
		}
		if err != nil || len(key) != tc.wantLen {
			t.Fatalf("%s: len=%d err=%v", tc.name, len(key), err)
		}
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Setenv("WARDEN_TOKEN_HMAC_KEY", "")
	if _, err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err == nil {
		t.Fatalf("missing key must fail when required")
	}
	d, err := ValidateSecurityConfig(Config{})
	if err != nil || d.Keyed() {
		t.Fatalf("optional mode without key: keyed=%v err=%v", d.Keyed(), err)
	}

	t.Setenv("WARDEN_TOKEN_HMAC_KEY", "too-short")
	if _, err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err == nil {
		t.Fatalf("short key must fail when required")
	}

	t.Setenv("WARDEN_TOKEN_HMAC_KEY", strings.Repeat("k", 32))
	d, err = ValidateSecurityConfig(Config{RequireTokenHMAC: true})
	if err != nil || !d.Keyed() {
		t.Fatalf("keyed=%v err=%v", d.Keyed(), err)
	}
}
