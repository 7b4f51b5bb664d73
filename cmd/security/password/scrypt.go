package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// ScryptID is the PHC identifier written by Scrypt.Hash.
const ScryptID = "scrypt"

// Scrypt hashes passwords with scrypt.
// Format:
// $scrypt$n=<cost>,r=<block>,p=<par>$<salt_b64>$<hash_b64>
type Scrypt struct {
	Cost        int
	BlockSize   int
	Parallelism int
	SaltLength  int
	KeyLength   int
	Policy      Policy
}

func DefaultScrypt() Scrypt {
	return Scrypt{
		Cost:        1 << 15,
		BlockSize:   8,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   64,
		Policy:      DefaultConfig().Policy,
	}
}

func (s Scrypt) Hash(password string) (string, error) {
	if err := (Config{Policy: s.Policy}).Validate(password); err != nil {
		return "", err
	}
	salt := make([]byte, s.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	key, err := scrypt.Key([]byte(password), salt, s.Cost, s.BlockSize, s.Parallelism, s.KeyLength)
	if err != nil {
		return "", fmt.Errorf("scrypt: %w", err)
	}
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$scrypt$n=%d,r=%d,p=%d$%s$%s",
		s.Cost, s.BlockSize, s.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

func (s Scrypt) Verify(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != ScryptID {
		return false, ErrInvalidHash
	}
	var n, r, p int
	if _, err := fmt.Sscanf(parts[2], "n=%d,r=%d,p=%d", &n, &r, &p); err != nil {
		return false, ErrInvalidHash
	}
	// Same anti-DoS idea as argon2id: tolerate older settings, refuse huge ones.
	if n < 2 || n&(n-1) != 0 || n > s.Cost*2 || r <= 0 || r > s.BlockSize*2 || p <= 0 || p > s.Parallelism*2 {
		return false, ErrInvalidHash
	}
	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[3])
	if err != nil || len(salt) < 8 {
		return false, ErrInvalidHash
	}
	expected, err := b64.DecodeString(parts[4])
	if err != nil || len(expected) < 16 || len(expected) > 128 {
		return false, ErrInvalidHash
	}
	key, err := scrypt.Key([]byte(password), salt, n, r, p, len(expected))
	if err != nil {
		return false, ErrInvalidHash
	}
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}
