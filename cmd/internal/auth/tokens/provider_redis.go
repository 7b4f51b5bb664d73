package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thejerf/abtime"
)

// DefaultRedisPrefix namespaces token keys.
const DefaultRedisPrefix = "warden:tokens:"

// RedisProvider stores tokens as JSON values with a native TTL. expires_at
// is not stored; it is rebuilt from the remaining TTL on read.
type RedisProvider struct {
	client redis.UniversalClient
	prefix string
	kind   Kind
	clock  abtime.AbstractTime
}

var _ Provider = (*RedisProvider)(nil)

// RedisOption configures the provider.
type RedisOption func(*RedisProvider)

// WithRedisPrefix overrides DefaultRedisPrefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(p *RedisProvider) { p.prefix = prefix }
}

// WithRedisClock sets the clock used to compute TTLs.
func WithRedisClock(clock abtime.AbstractTime) RedisOption {
	return func(p *RedisProvider) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func NewRedisProvider(client redis.UniversalClient, kind Kind, opts ...RedisOption) (*RedisProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("tokens: nil redis client")
	}
	p := &RedisProvider{client: client, prefix: DefaultRedisPrefix, kind: kind, clock: abtime.NewRealTime()}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

type redisEntry struct {
	UserID    string            `json:"user_id"`
	Hash      string            `json:"hash"`
	Type      Kind              `json:"type"`
	Guard     string            `json:"guard"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Key returns the cache key holding series.
func (p *RedisProvider) Key(series string) string {
	return p.prefix + string(p.kind) + ":" + series
}

// ttlFor rounds the time left up to whole seconds. ok is false when the
// token is already expired.
func ttlFor(t *Token, now time.Time) (ttl time.Duration, ok bool) {
	if t.ExpiresAt == nil {
		return 0, true
	}
	left := t.ExpiresIn(now)
	if left <= 0 {
		return 0, false
	}
	secs := (left + time.Second - 1) / time.Second
	return secs * time.Second, true
}

func (p *RedisProvider) CreateToken(ctx context.Context, t *Token) error {
	if err := validateForCreate(t, p.kind); err != nil {
		return err
	}
	ttl, ok := ttlFor(t, p.clock.Now())
	if !ok {
		return nil
	}

	data, err := json.Marshal(redisEntry{
		UserID:    t.UserID,
		Hash:      t.Hash,
		Type:      p.kind,
		Guard:     t.Guard,
		Meta:      t.Meta,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("tokens: encode: %w", err)
	}

	created, err := p.client.SetNX(ctx, p.Key(t.Series), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("tokens: redis set: %w", err)
	}
	if !created {
		return ErrDuplicateSeries
	}
	return nil
}

func (p *RedisProvider) TokenBySeries(ctx context.Context, series string) (*Token, error) {
	key := p.Key(series)

	var (
		getCmd  *redis.StringCmd
		pttlCmd *redis.DurationCmd
	)
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		getCmd = pipe.Get(ctx, key)
		pttlCmd = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("tokens: redis get: %w", err)
	}

	data, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tokens: redis get: %w", err)
	}

	var e redisEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("tokens: decode: %w", err)
	}
	if e.Type != p.kind {
		return nil, nil
	}

	t := &Token{
		Series:    series,
		Hash:      e.Hash,
		UserID:    e.UserID,
		Guard:     e.Guard,
		Kind:      e.Type,
		Meta:      e.Meta,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	// PTTL is -1 for keys without expiry.
	if left, err := pttlCmd.Result(); err == nil && left > 0 {
		at := p.clock.Now().Add(left)
		t.ExpiresAt = &at
	}
	return t, nil
}

func (p *RedisProvider) DeleteToken(ctx context.Context, series string) error {
	if err := p.client.Del(ctx, p.Key(series)).Err(); err != nil {
		return fmt.Errorf("tokens: redis del: %w", err)
	}
	return nil
}
