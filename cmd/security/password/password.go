package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ID is the PHC identifier written by Config.Hash.
const ID = "argon2id"

const phcVersion = "v=19" // argon2.Version

var phcB64 = base64.RawStdEncoding

// Hash returns $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>.
func (c Config) Hash(plain string) (string, error) {
	if err := c.Validate(plain); err != nil {
		return "", err
	}
	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	p := c.Params
	key := argon2.IDKey([]byte(plain), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("$%s$%s$m=%d,t=%d,p=%d$%s$%s",
		ID, phcVersion, p.MemoryKiB, p.Iterations, p.Parallelism,
		phcB64.EncodeToString(salt), phcB64.EncodeToString(key)), nil
}

// Verify reports whether plain matches digest. A malformed digest, or one
// whose cost exceeds twice the configured params, yields ErrInvalidHash.
func (c Config) Verify(plain, digest string) (bool, error) {
	got, salt, want, err := parsePHC(digest)
	if err != nil {
		return false, err
	}
	if !got.within(c.Params) {
		return false, ErrInvalidHash
	}
	key := argon2.IDKey([]byte(plain), salt, got.Iterations, got.MemoryKiB, got.Parallelism, got.KeyLength)
	return subtle.ConstantTimeCompare(key, want) == 1, nil
}

// within accepts cheaper historic hashes but not attacker-sized ones.
func (p Argon2idParams) within(limit Argon2idParams) bool {
	switch {
	case p.MemoryKiB > limit.MemoryKiB*2,
		p.Iterations > limit.Iterations*2,
		uint32(p.Parallelism) > uint32(limit.Parallelism)*2:
		return false
	case p.SaltLength < 8 || p.SaltLength > 64:
		return false
	case p.KeyLength < 16 || p.KeyLength > 128:
		return false
	}
	return true
}

func parsePHC(digest string) (Argon2idParams, []byte, []byte, error) {
	fields := strings.Split(digest, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != ID || fields[2] != phcVersion {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var m, t, par uint32
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &m, &t, &par); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if m == 0 || t == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	salt, err := phcB64.DecodeString(fields[4])
	if err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	key, err := phcB64.DecodeString(fields[5])
	if err != nil || len(key) > 1<<10 || len(salt) > 1<<10 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	return Argon2idParams{
		MemoryKiB:   m,
		Iterations:  t,
		Parallelism: uint8(par),       // #nosec G115 -- checked <= 255.
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded above.
		KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded above.
	}, salt, key, nil
}
