package session

import (
	"context"
	"sync"
	"time"

	"github.com/thejerf/abtime"
)

// MemoryBackend keeps sessions in process memory. Expired sessions are
// dropped on access.
type MemoryBackend struct {
	mu    sync.Mutex
	clock abtime.AbstractTime
	data  map[string]*memorySession
}

type memorySession struct {
	values    map[string]string
	expiresAt time.Time
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend(clock abtime.AbstractTime) *MemoryBackend {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &MemoryBackend{clock: clock, data: make(map[string]*memorySession)}
}

// live returns the session id if present and not expired. Caller holds mu.
func (m *MemoryBackend) live(id string) *memorySession {
	s, ok := m.data[id]
	if !ok {
		return nil
	}
	if !s.expiresAt.IsZero() && m.clock.Now().After(s.expiresAt) {
		delete(m.data, id)
		return nil
	}
	return s
}

func (m *MemoryBackend) Get(ctx context.Context, id, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.live(id)
	if s == nil {
		return "", false, nil
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (m *MemoryBackend) Put(ctx context.Context, id, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.live(id)
	if s == nil {
		s = &memorySession{values: make(map[string]string)}
		m.data[id] = s
	}
	s.values[key] = value
	if ttl > 0 {
		s.expiresAt = m.clock.Now().Add(ttl)
	}
	return nil
}

func (m *MemoryBackend) Forget(ctx context.Context, id, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.live(id); s != nil {
		delete(s.values, key)
	}
	return nil
}

func (m *MemoryBackend) Destroy(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data, id)
	m.mu.Unlock()
	return nil
}
