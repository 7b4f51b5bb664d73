package tokens

import (
	"context"
	"sync"

	"github.com/thejerf/abtime"
)

// MemoryProvider keeps tokens in process memory with relational semantics:
// expired rows stay stored and are hidden on read.
type MemoryProvider struct {
	mu    sync.Mutex
	kind  Kind
	clock abtime.AbstractTime
	rows  map[string]*Token
}

var _ RelationalProvider = (*MemoryProvider)(nil)

func NewMemoryProvider(kind Kind, clock abtime.AbstractTime) *MemoryProvider {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &MemoryProvider{kind: kind, clock: clock, rows: make(map[string]*Token)}
}

func (m *MemoryProvider) CreateToken(ctx context.Context, t *Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateForCreate(t, m.kind); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.Series]; ok {
		return ErrDuplicateSeries
	}
	row := t.clone()
	row.Kind = m.kind
	m.rows[t.Series] = row
	return nil
}

func (m *MemoryProvider) TokenBySeries(ctx context.Context, series string) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[series]
	if !ok {
		return nil, nil
	}
	if row.ExpiresAt != nil && m.clock.Now().After(*row.ExpiresAt) {
		return nil, nil
	}
	return row.clone(), nil
}

func (m *MemoryProvider) DeleteToken(ctx context.Context, series string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.rows, series)
	m.mu.Unlock()
	return nil
}

func (m *MemoryProvider) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for s, row := range m.rows {
		if row.UserID == userID {
			delete(m.rows, s)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored rows, expired ones included.
func (m *MemoryProvider) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
