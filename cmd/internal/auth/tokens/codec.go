package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/thejerf/abtime"

	"warden/cmd/security/token"
)

const (
	// DefaultValueSize is the number of random bytes in a token value.
	DefaultValueSize = 40

	seriesBytes = 15 // 20 base64url chars
)

// Codec creates and verifies tokens.
type Codec struct {
	digester token.Digester
	clock    abtime.AbstractTime
	size     int
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithDigester sets how values are digested (default SHA-256).
func WithDigester(d token.Digester) CodecOption {
	return func(c *Codec) { c.digester = d }
}

// WithClock sets the clock used for timestamps and expiry.
func WithClock(clock abtime.AbstractTime) CodecOption {
	return func(c *Codec) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithValueSize sets the default value size in bytes.
func WithValueSize(n int) CodecOption {
	return func(c *Codec) {
		if n > 0 {
			c.size = n
		}
	}
}

func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{clock: abtime.NewRealTime(), size: DefaultValueSize}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Now returns the codec clock's current time in UTC.
func (c *Codec) Now() time.Time { return c.clock.Now().UTC() }

// Clock exposes the codec clock so providers can share it.
func (c *Codec) Clock() abtime.AbstractTime { return c.clock }

// Create issues a token with a fresh series and value. expiresIn <= 0 means
// the token never expires; size <= 0 uses the codec default.
func (c *Codec) Create(userID, guard string, kind Kind, expiresIn time.Duration, size int) (*Token, error) {
	if userID == "" || guard == "" {
		return nil, fmt.Errorf("%w: user id and guard are required", ErrInvalidToken)
	}
	if size <= 0 {
		size = c.size
	}

	series, err := randomString(seriesBytes)
	if err != nil {
		return nil, err
	}
	value, err := randomString(size)
	if err != nil {
		return nil, err
	}

	now := c.Now()
	t := &Token{
		Series:    series,
		Value:     value,
		Hash:      c.digester.Digest(value),
		UserID:    userID,
		Guard:     guard,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.setExpiresIn(now, expiresIn)
	return t, nil
}

// Verify compares the digest of plain against storedHash in constant time.
func (c *Codec) Verify(plain, storedHash string) bool {
	return c.digester.Equal(plain, storedHash)
}

// IsExpired reports whether t has an expiry in the past.
func (c *Codec) IsExpired(t *Token) bool {
	return t.ExpiresAt != nil && c.Now().After(*t.ExpiresAt)
}

// Check verifies a presented value against a stored token, including expiry.
func (c *Codec) Check(t *Token, value string) bool {
	if t == nil || c.IsExpired(t) {
		return false
	}
	return c.Verify(value, t.Hash)
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("tokens: random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
