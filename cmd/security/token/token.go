package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "WARDEN_TOKEN_HMAC_KEY"

	// MinHMACKeyBytes is the smallest key accepted in enforced mode.
	MinHMACKeyBytes = 32
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Digester produces the stored form of token secrets.
// The zero value uses plain SHA-256.
type Digester struct {
	key []byte
}

// NewDigester returns a Digester. A nil or empty key selects SHA-256,
// anything else HMAC-SHA256.
func NewDigester(key []byte) Digester {
	if len(key) == 0 {
		return Digester{}
	}
	k := make([]byte, len(key))
	copy(k, key)
	return Digester{key: k}
}

// DigesterFromEnv builds a Digester from HMACEnvKey.
// With require=true a missing or short key is an error; otherwise a
// missing key falls back to SHA-256.
func DigesterFromEnv(require bool) (Digester, error) {
	key, err := HMACKeyFromEnv(MinHMACKeyBytes)
	switch {
	case err == nil:
		return NewDigester(key), nil
	case err == ErrHMACKeyMissing && !require:
		return Digester{}, nil
	default:
		return Digester{}, err
	}
}

// Keyed reports whether HMAC mode is active.
func (d Digester) Keyed() bool { return len(d.key) > 0 }

// Digest returns the 64-char hex digest of s.
func (d Digester) Digest(s string) string {
	if len(d.key) == 0 {
		return HashSHA256Hex(s)
	}
	return HashHMACSHA256Hex(s, d.key)
}

// Equal reports whether plain digests to storedHex. The comparison is
// constant-time with respect to the digest contents.
func (d Digester) Equal(plain, storedHex string) bool {
	got := d.Digest(plain)
	if len(got) != len(storedHex) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHex)) == 1
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}
