package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"WARDEN_HTTP_ADDR,default=0.0.0.0:8080"`
	LogLevel  string `env:"WARDEN_LOG_LEVEL,default=info"`
	LogFormat string `env:"WARDEN_LOG_FORMAT,default=json"`

	ReadHeaderTimeout time.Duration `env:"WARDEN_HTTP_READ_HEADER_TIMEOUT,default=5s"`
	ReadTimeout       time.Duration `env:"WARDEN_HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout      time.Duration `env:"WARDEN_HTTP_WRITE_TIMEOUT,default=15s"`
	IdleTimeout       time.Duration `env:"WARDEN_HTTP_IDLE_TIMEOUT,default=60s"`
	MaxHeaderBytes    int           `env:"WARDEN_HTTP_MAX_HEADER_BYTES,default=1048576"`

	DatabaseURL   string `env:"WARDEN_DATABASE_URL"`
	DBSchema      string `env:"WARDEN_DB_SCHEMA,default=warden"`
	DBMaxConns    int32  `env:"WARDEN_DB_MAX_CONNS,default=10"`
	DBMinConns    int32  `env:"WARDEN_DB_MIN_CONNS,default=0"`
	DBAutoMigrate bool   `env:"WARDEN_DB_AUTO_MIGRATE,default=true"`

	RedisURL    string `env:"WARDEN_REDIS_URL"`
	RedisPrefix string `env:"WARDEN_REDIS_PREFIX,default=warden:"`

	// SessionStore selects the session backend: memory, redis or postgres.
	// Empty picks redis, then postgres, then memory, by what is configured.
	SessionStore         string        `env:"WARDEN_SESSION_STORE"`
	SessionSweepInterval time.Duration `env:"WARDEN_SESSION_SWEEP_INTERVAL,default=10m"`

	// CookieHashKey and CookieBlockKey are base64 securecookie keys. When
	// unset, random keys are generated and cookies die with the process.
	CookieHashKey  string `env:"WARDEN_COOKIE_HASH_KEY"`
	CookieBlockKey string `env:"WARDEN_COOKIE_BLOCK_KEY"`

	// GuardsFile points at an optional YAML guards definition.
	GuardsFile string `env:"WARDEN_GUARDS_FILE"`

	AuditBuffer int `env:"WARDEN_AUDIT_BUFFER,default=1024"`

	CORSAllowedOrigins   []string `env:"WARDEN_CORS_ALLOWED_ORIGINS"`
	CORSAllowCredentials bool     `env:"WARDEN_CORS_ALLOW_CREDENTIALS,default=true"`
	CORSMaxAgeSeconds    int      `env:"WARDEN_CORS_MAX_AGE_SECONDS,default=600"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `env:"WARDEN_READINESS_REQUIRE_DB,default=false"`

	// If true, WARDEN_TOKEN_HMAC_KEY must be set (>= 32 bytes) and token
	// digests are HMAC-based.
	RequireTokenHMAC bool `env:"WARDEN_REQUIRE_TOKEN_HMAC,default=false"`

	// DevUser and DevPassword seed one account at startup.
	DevUser     string `env:"WARDEN_DEV_USER"`
	DevPassword string `env:"WARDEN_DEV_PASSWORD"`
}

// Session store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// ErrConfig is returned for invalid runtime configuration.
var ErrConfig = errors.New("invalid config")

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LogFormat {
	case "json", "pretty", "text":
	default:
		return fmt.Errorf("%w: WARDEN_LOG_FORMAT %q", ErrConfig, c.LogFormat)
	}
	switch c.SessionStore {
	case "", StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: session store postgres needs WARDEN_DATABASE_URL", ErrConfig)
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: session store redis needs WARDEN_REDIS_URL", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: WARDEN_SESSION_STORE %q", ErrConfig, c.SessionStore)
	}
	if (c.DevUser == "") != (c.DevPassword == "") {
		return fmt.Errorf("%w: WARDEN_DEV_USER and WARDEN_DEV_PASSWORD go together", ErrConfig)
	}
	return nil
}

// sessionStore resolves the configured or implied session backend.
func (c Config) sessionStore() string {
	switch {
	case c.SessionStore != "":
		return c.SessionStore
	case c.RedisURL != "":
		return StoreRedis
	case c.DatabaseURL != "":
		return StorePostgres
	default:
		return StoreMemory
	}
}
