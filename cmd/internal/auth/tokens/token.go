package tokens

import (
	"log/slog"
	"strings"
	"time"
)

// Kind discriminates token families sharing one storage shape.
type Kind string

const (
	KindRememberMe Kind = "remember_me_token"
	KindOpaque     Kind = "opaque_token"
)

// Token is a secret credential record.
//
// Value is only populated between Codec.Create and the first persistence;
// providers never store it and always return it empty.
type Token struct {
	Series    string
	Value     string `json:"-"`
	Hash      string
	UserID    string
	Guard     string
	Kind      Kind
	Meta      map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

// Credential returns the client-facing "series.value" form, or "" once the
// value is gone.
func (t *Token) Credential() string {
	if t == nil || t.Value == "" {
		return ""
	}
	return t.Series + "." + t.Value
}

// SetExpiry resolves expiry (see ParseExpiry) relative to now.
func (t *Token) SetExpiry(now time.Time, expiry string) error {
	d, err := ParseExpiry(expiry)
	if err != nil {
		return err
	}
	t.setExpiresIn(now, d)
	return nil
}

func (t *Token) setExpiresIn(now time.Time, d time.Duration) {
	if d <= 0 {
		t.ExpiresAt = nil
		return
	}
	at := now.Add(d)
	t.ExpiresAt = &at
}

// ExpiresIn returns the time left before expiry, 0 for non-expiring tokens
// and a negative duration for expired ones.
func (t *Token) ExpiresIn(now time.Time) time.Duration {
	if t.ExpiresAt == nil {
		return 0
	}
	left := t.ExpiresAt.Sub(now)
	if left == 0 {
		return -1
	}
	return left
}

// LogValue keeps secrets out of structured logs.
func (t *Token) LogValue() slog.Value {
	if t == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("series", t.Series),
		slog.String("guard", t.Guard),
		slog.String("kind", string(t.Kind)),
	)
}

func (t *Token) clone() *Token {
	c := *t
	c.Value = ""
	if t.Meta != nil {
		c.Meta = make(map[string]string, len(t.Meta))
		for k, v := range t.Meta {
			c.Meta[k] = v
		}
	}
	if t.ExpiresAt != nil {
		at := *t.ExpiresAt
		c.ExpiresAt = &at
	}
	return &c
}

// ParseCredential splits "series.value" on the first dot.
func ParseCredential(s string) (series, value string, err error) {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return "", "", ErrMalformedCredential
	}
	return s[:i], s[i+1:], nil
}
