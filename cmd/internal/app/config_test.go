package app

import (
	"errors"
	"testing"
	"time"

	"github.com/go-test/deep"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := Config{
		HTTPAddr:             "0.0.0.0:8080",
		LogLevel:             "info",
		LogFormat:            "json",
		ReadHeaderTimeout:    5 * time.Second,
		ReadTimeout:          15 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		MaxHeaderBytes:       1 << 20,
		DBSchema:             "warden",
		DBMaxConns:           10,
		DBAutoMigrate:        true,
		RedisPrefix:          "warden:",
		SessionSweepInterval: 10 * time.Minute,
		AuditBuffer:          1024,
		CORSAllowCredentials: true,
		CORSMaxAgeSeconds:    600,
	}
	if diff := deep.Equal(cfg, want); diff != nil {
		t.Fatalf("defaults differ: %v", diff)
	}
	if got := cfg.sessionStore(); got != StoreMemory {
		t.Fatalf("sessionStore()=%q want memory", got)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("WARDEN_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("WARDEN_LOG_FORMAT", "Pretty")
	t.Setenv("WARDEN_HTTP_READ_TIMEOUT", "3s")
	t.Setenv("WARDEN_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("WARDEN_CORS_ALLOWED_ORIGINS", "https://app.example.com;http://127.0.0.1:*")
	t.Setenv("WARDEN_DB_MAX_CONNS", "4")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.LogFormat != "pretty" || cfg.ReadTimeout != 3*time.Second || cfg.DBMaxConns != 4 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if diff := deep.Equal(cfg.CORSAllowedOrigins, []string{"https://app.example.com", "http://127.0.0.1:*"}); diff != nil {
		t.Fatalf("origins: %v", diff)
	}
	if got := cfg.sessionStore(); got != StoreRedis {
		t.Fatalf("sessionStore()=%q want redis", got)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "log format", env: map[string]string{"WARDEN_LOG_FORMAT": "xml"}},
		{name: "unknown session store", env: map[string]string{"WARDEN_SESSION_STORE": "memcached"}},
		{name: "redis store without url", env: map[string]string{"WARDEN_SESSION_STORE": "redis"}},
		{name: "postgres store without url", env: map[string]string{"WARDEN_SESSION_STORE": "postgres"}},
		{name: "dev user without password", env: map[string]string{"WARDEN_DEV_USER": "alice"}},
		{name: "bad duration", env: map[string]string{"WARDEN_HTTP_IDLE_TIMEOUT": "forever"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestConfig_SessionStore(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{cfg: Config{}, want: StoreMemory},
		{cfg: Config{DatabaseURL: "postgres://x"}, want: StorePostgres},
		{cfg: Config{DatabaseURL: "postgres://x", RedisURL: "redis://x"}, want: StoreRedis},
		{cfg: Config{RedisURL: "redis://x", SessionStore: StoreMemory}, want: StoreMemory},
	}
	for _, tc := range cases {
		if got := tc.cfg.sessionStore(); got != tc.want {
			t.Fatalf("sessionStore(%+v)=%q want %q", tc.cfg, got, tc.want)
		}
	}
}
