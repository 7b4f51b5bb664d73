package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"warden/cmd/internal/auth/access"
	"warden/cmd/internal/auth/basic"
	"warden/cmd/internal/auth/session"
)

// Token backends a guard can persist its tokens in. BackendNone turns
// remember-me off for a session guard.
const (
	BackendAuto     = ""
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// GuardsFile is the YAML description of the configured guards:
//
//	default: web
//	guards:
//	  web:
//	    driver: session
//	    tokens: postgres
//	    remember_me_ttl: 720h
//	  api:
//	    driver: access_tokens
//	    tokens: redis
//	  basic:
//	    driver: basic_auth
//	    realm: Admin
type GuardsFile struct {
	Default string                 `yaml:"default"`
	Guards  map[string]GuardConfig `yaml:"guards"`
}

// GuardConfig configures one named guard.
type GuardConfig struct {
	Driver string `yaml:"driver"`

	// Tokens selects the token backend of session and access_tokens guards.
	// Empty means postgres when a database is configured, memory otherwise.
	Tokens     string `yaml:"tokens"`
	TokenTable string `yaml:"token_table"`
	TokenBytes int    `yaml:"token_bytes"`

	RememberMeTTL time.Duration `yaml:"remember_me_ttl"`

	Realm string `yaml:"realm"`
}

// DefaultGuards is used when no guards file is configured: a session guard
// "web", an access token guard "api" and a basic auth guard "basic".
func DefaultGuards() GuardsFile {
	return GuardsFile{
		Default: "web",
		Guards: map[string]GuardConfig{
			"web":   {Driver: session.Driver},
			"api":   {Driver: access.Driver},
			"basic": {Driver: basic.Driver},
		},
	}
}

// LoadGuards reads path, or returns DefaultGuards when path is empty.
func LoadGuards(path string) (GuardsFile, error) {
	if path == "" {
		return DefaultGuards(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return GuardsFile{}, fmt.Errorf("read guards file: %w", err)
	}
	gf, err := ParseGuards(b)
	if err != nil {
		return GuardsFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return gf, nil
}

// ParseGuards decodes and validates a guards document. Unknown keys are
// rejected.
func ParseGuards(b []byte) (GuardsFile, error) {
	var gf GuardsFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&gf); err != nil && !errors.Is(err, io.EOF) {
		return GuardsFile{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := gf.Validate(); err != nil {
		return GuardsFile{}, err
	}
	return gf, nil
}

// Names returns the guard names in sorted order.
func (gf GuardsFile) Names() []string {
	names := make([]string, 0, len(gf.Guards))
	for name := range gf.Guards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks drivers, backends and the default guard.
func (gf GuardsFile) Validate() error {
	if len(gf.Guards) == 0 {
		return fmt.Errorf("%w: no guards defined", ErrConfig)
	}
	if _, ok := gf.Guards[gf.Default]; !ok {
		return fmt.Errorf("%w: default guard %q is not defined", ErrConfig, gf.Default)
	}
	for _, name := range gf.Names() {
		gc := gf.Guards[name]
		if name == "" {
			return fmt.Errorf("%w: empty guard name", ErrConfig)
		}
		switch gc.Driver {
		case session.Driver, access.Driver:
			switch gc.Tokens {
			case BackendAuto, BackendMemory, BackendPostgres, BackendRedis:
			case BackendNone:
				if gc.Driver == access.Driver {
					return fmt.Errorf("%w: guard %q: access_tokens needs a token backend", ErrConfig, name)
				}
			default:
				return fmt.Errorf("%w: guard %q: unknown token backend %q", ErrConfig, name, gc.Tokens)
			}
		case basic.Driver:
			if gc.Tokens != "" || gc.TokenTable != "" || gc.TokenBytes != 0 || gc.RememberMeTTL != 0 {
				return fmt.Errorf("%w: guard %q: basic_auth takes no token settings", ErrConfig, name)
			}
		default:
			return fmt.Errorf("%w: guard %q: unknown driver %q", ErrConfig, name, gc.Driver)
		}
		if gc.TokenBytes < 0 || (gc.TokenBytes > 0 && gc.TokenBytes < 16) {
			return fmt.Errorf("%w: guard %q: token_bytes must be at least 16", ErrConfig, name)
		}
		if gc.RememberMeTTL < 0 {
			return fmt.Errorf("%w: guard %q: negative remember_me_ttl", ErrConfig, name)
		}
	}
	return nil
}
