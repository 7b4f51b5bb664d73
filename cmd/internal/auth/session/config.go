package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines runtime configuration shared by session guards and the
// session-id cookie.
type Config struct {
	// IdleTTL is how long an untouched server-side session survives.
	IdleTTL time.Duration

	// RememberMeTTL is the lifetime of remember-me tokens and cookies.
	RememberMeTTL time.Duration

	// RememberMeTokenBytes is the random value size of remember-me tokens.
	RememberMeTokenBytes int

	// CookieName carries the session id.
	CookieName string

	// CookieSecure sets the Secure attribute on every cookie we write.
	CookieSecure bool

	// CookiePath scopes cookies.
	CookiePath string
}

// DefaultConfig returns a configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		IdleTTL:              2 * time.Hour,
		RememberMeTTL:        5 * 365 * 24 * time.Hour,
		RememberMeTokenBytes: 40,
		CookieName:           "warden_session",
		CookieSecure:         true,
		CookiePath:           "/",
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - WARDEN_SESSION_IDLE_TTL
//   - WARDEN_REMEMBER_ME_TTL
//   - WARDEN_REMEMBER_ME_TOKEN_BYTES
//   - WARDEN_SESSION_COOKIE
//   - WARDEN_COOKIE_SECURE
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("WARDEN_SESSION_IDLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.IdleTTL = d
	}

	if v := os.Getenv("WARDEN_REMEMBER_ME_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RememberMeTTL = d
	}

	if v := os.Getenv("WARDEN_REMEMBER_ME_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RememberMeTokenBytes = n
	}

	if v := os.Getenv("WARDEN_SESSION_COOKIE"); v != "" {
		cfg.CookieName = v
	}

	if v := os.Getenv("WARDEN_COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.CookieSecure = b
	}

	// Invariant: remember-me outlives the idle session.
	if cfg.RememberMeTTL < cfg.IdleTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
