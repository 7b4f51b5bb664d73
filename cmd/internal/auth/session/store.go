package session

import (
	"context"
	"time"
)

// Store is one session's key/value bag as seen by a guard.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string) error
	Forget(ctx context.Context, key string) error
}

// Backend persists the data of all sessions. ttl is the idle lifetime
// refreshed on every write.
type Backend interface {
	Get(ctx context.Context, id, key string) (string, bool, error)
	Put(ctx context.Context, id, key, value string, ttl time.Duration) error
	Forget(ctx context.Context, id, key string) error
	Destroy(ctx context.Context, id string) error
}

// Sessions opens per-request Stores over a Backend.
type Sessions struct {
	backend Backend
	ttl     time.Duration
}

func NewSessions(b Backend, idleTTL time.Duration) *Sessions {
	return &Sessions{backend: b, ttl: idleTTL}
}

// Open binds a Store to session id.
func (s *Sessions) Open(id string) *Handle {
	return &Handle{id: id, s: s}
}

// Handle is the Store of one session id.
type Handle struct {
	id string
	s  *Sessions
}

var _ Store = (*Handle)(nil)

func (h *Handle) ID() string { return h.id }

func (h *Handle) Get(ctx context.Context, key string) (string, bool, error) {
	return h.s.backend.Get(ctx, h.id, key)
}

func (h *Handle) Put(ctx context.Context, key, value string) error {
	return h.s.backend.Put(ctx, h.id, key, value, h.s.ttl)
}

func (h *Handle) Forget(ctx context.Context, key string) error {
	return h.s.backend.Forget(ctx, h.id, key)
}

// Destroy drops every key of the session, signing out all guards that
// share it.
func (h *Handle) Destroy(ctx context.Context) error {
	return h.s.backend.Destroy(ctx, h.id)
}
