package password

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/joeshaw/envdecode"
)

// ErrConfig wraps every FromEnv failure.
var ErrConfig = errors.New("invalid password config")

// Argon2idParams is the argon2id cost. MemoryKiB is passed to argon2.IDKey as is.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds what Hash accepts.
type Policy struct {
	MinLength int
	MaxLength int
	// RejectVeryWeak turns on the small deny-list in looksVeryWeak.
	RejectVeryWeak bool
}

// Config is the argon2id Hasher.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig is tuned for interactive logins.
func DefaultConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(min(max(runtime.NumCPU(), 1), 4)), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{MinLength: 12, MaxLength: 256},
	}
}

// envConfig is the WARDEN_* surface read by FromEnv. Unset variables keep
// the DefaultConfig value.
type envConfig struct {
	MinLength      int  `env:"WARDEN_PASSWORD_MIN_LEN"`
	MaxLength      int  `env:"WARDEN_PASSWORD_MAX_LEN"`
	RejectVeryWeak bool `env:"WARDEN_PASSWORD_REJECT_VERY_WEAK"`

	MemoryKiB   uint32 `env:"WARDEN_ARGON2_MEMORY_KIB"`
	Iterations  uint32 `env:"WARDEN_ARGON2_ITERATIONS"`
	Parallelism uint32 `env:"WARDEN_ARGON2_PARALLELISM"`
	SaltLength  uint32 `env:"WARDEN_ARGON2_SALT_LEN"`
	KeyLength   uint32 `env:"WARDEN_ARGON2_KEY_LEN"`
}

type bound struct {
	name     string
	got      uint64
	min, max uint64
}

// FromEnv overlays WARDEN_PASSWORD_* and WARDEN_ARGON2_* on DefaultConfig.
func FromEnv() (Config, error) {
	def := DefaultConfig()
	e := envConfig{
		MinLength:      def.Policy.MinLength,
		MaxLength:      def.Policy.MaxLength,
		RejectVeryWeak: def.Policy.RejectVeryWeak,
		MemoryKiB:      def.Params.MemoryKiB,
		Iterations:     def.Params.Iterations,
		Parallelism:    uint32(def.Params.Parallelism),
		SaltLength:     def.Params.SaltLength,
		KeyLength:      def.Params.KeyLength,
	}
	if err := envdecode.Decode(&e); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if e.MinLength < 0 || e.MaxLength < 0 {
		return Config{}, fmt.Errorf("%w: negative password length", ErrConfig)
	}

	for _, b := range []bound{
		{"WARDEN_PASSWORD_MIN_LEN", uint64(e.MinLength), 1, 1024},
		{"WARDEN_PASSWORD_MAX_LEN", uint64(e.MaxLength), 1, 4096},
		{"WARDEN_ARGON2_MEMORY_KIB", uint64(e.MemoryKiB), 8 * 1024, 1024 * 1024},
		{"WARDEN_ARGON2_ITERATIONS", uint64(e.Iterations), 1, 20},
		{"WARDEN_ARGON2_PARALLELISM", uint64(e.Parallelism), 1, 64},
		{"WARDEN_ARGON2_SALT_LEN", uint64(e.SaltLength), 8, 64},
		{"WARDEN_ARGON2_KEY_LEN", uint64(e.KeyLength), 16, 64},
	} {
		if b.got < b.min || b.got > b.max {
			return Config{}, fmt.Errorf("%w: %s out of range [%d..%d]", ErrConfig, b.name, b.min, b.max)
		}
	}
	if e.MinLength > e.MaxLength {
		return Config{}, fmt.Errorf("%w: min_len(%d) > max_len(%d)", ErrConfig, e.MinLength, e.MaxLength)
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   e.MemoryKiB,
			Iterations:  e.Iterations,
			Parallelism: uint8(e.Parallelism), // #nosec G115 -- bounded to 64 above.
			SaltLength:  e.SaltLength,
			KeyLength:   e.KeyLength,
		},
		Policy: Policy{
			MinLength:      e.MinLength,
			MaxLength:      e.MaxLength,
			RejectVeryWeak: e.RejectVeryWeak,
		},
	}, nil
}
