package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// ErrConfig is returned for invalid API configuration.
var ErrConfig = errors.New("invalid api config")

// Config controls the auth endpoints.
type Config struct {
	// WebGuard is the session guard used by login, logout and token issuance.
	WebGuard string `env:"WARDEN_API_WEB_GUARD,default=web"`
	// TokenGuard is the access token guard whose tokens /auth/tokens manages.
	TokenGuard string `env:"WARDEN_API_TOKEN_GUARD,default=api"`
	// MeGuards are tried in order by GET /me.
	MeGuards []string `env:"WARDEN_API_ME_GUARDS,default=web;api;basic"`
	// LoginRoute is reported to browsers when /me is unauthorized.
	LoginRoute string `env:"WARDEN_API_LOGIN_ROUTE"`

	DefaultTokenExpiry string `env:"WARDEN_ACCESS_TOKEN_EXPIRY,default=30d"`

	TrustProxy   bool  `env:"WARDEN_AUTH_TRUST_PROXY,default=false"`
	MaxBodyBytes int64 `env:"WARDEN_AUTH_MAX_BODY_BYTES,default=1048576"`

	LoginIPMax    int           `env:"WARDEN_AUTH_LOGIN_IP_MAX,default=20"`
	LoginIPWindow time.Duration `env:"WARDEN_AUTH_LOGIN_IP_WINDOW,default=5m"`

	LockoutShortThreshold  int           `env:"WARDEN_AUTH_LOGIN_LOCKOUT_SHORT_THRESHOLD,default=5"`
	LockoutShortDuration   time.Duration `env:"WARDEN_AUTH_LOGIN_LOCKOUT_SHORT_DURATION,default=5m"`
	LockoutLongThreshold   int           `env:"WARDEN_AUTH_LOGIN_LOCKOUT_LONG_THRESHOLD,default=10"`
	LockoutLongDuration    time.Duration `env:"WARDEN_AUTH_LOGIN_LOCKOUT_LONG_DURATION,default=30m"`
	LockoutSevereThreshold int           `env:"WARDEN_AUTH_LOGIN_LOCKOUT_SEVERE_THRESHOLD,default=20"`
	LockoutSevereDuration  time.Duration `env:"WARDEN_AUTH_LOGIN_LOCKOUT_SEVERE_DURATION,default=2h"`

	CSRFCookieName string `env:"WARDEN_CSRF_COOKIE,default=warden_csrf"`
	CSRFHeaderName string `env:"WARDEN_CSRF_HEADER,default=X-CSRF-Token"`
	CookieDomain   string `env:"WARDEN_COOKIE_DOMAIN"`
	CookiePath     string `env:"WARDEN_COOKIE_PATH,default=/"`
	CookieSecure   bool   `env:"WARDEN_COOKIE_SECURE,default=true"`
	CookieSameSite string `env:"WARDEN_COOKIE_SAMESITE,default=lax"`
}

// DefaultConfig mirrors the struct tag defaults.
func DefaultConfig() Config {
	return Config{
		WebGuard:               "web",
		TokenGuard:             "api",
		MeGuards:               []string{"web", "api", "basic"},
		DefaultTokenExpiry:     "30d",
		MaxBodyBytes:           1 << 20,
		LoginIPMax:             20,
		LoginIPWindow:          5 * time.Minute,
		LockoutShortThreshold:  5,
		LockoutShortDuration:   5 * time.Minute,
		LockoutLongThreshold:   10,
		LockoutLongDuration:    30 * time.Minute,
		LockoutSevereThreshold: 20,
		LockoutSevereDuration:  2 * time.Hour,
		CSRFCookieName:         "warden_csrf",
		CSRFHeaderName:         "X-CSRF-Token",
		CookiePath:             "/",
		CookieSecure:           true,
		CookieSameSite:         "lax",
	}
}

// LoadConfigFromEnv decodes WARDEN_* variables over the defaults.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	// Browsers reject SameSite=None cookies without Secure.
	if parseSameSite(cfg.CookieSameSite) == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	if cfg.WebGuard == "" || cfg.TokenGuard == "" || len(cfg.MeGuards) == 0 {
		return Config{}, fmt.Errorf("%w: guard names must not be empty", ErrConfig)
	}
	return cfg, nil
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func (c Config) lockoutTiers() []lockoutTier {
	return []lockoutTier{
		{Threshold: c.LockoutSevereThreshold, Duration: c.LockoutSevereDuration},
		{Threshold: c.LockoutLongThreshold, Duration: c.LockoutLongDuration},
		{Threshold: c.LockoutShortThreshold, Duration: c.LockoutShortDuration},
	}
}
