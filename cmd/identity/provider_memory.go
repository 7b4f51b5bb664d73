package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"warden/cmd/security/password"
)

// MemoryProvider is an in-process UserProvider for development and tests.
type MemoryProvider struct {
	mu     sync.RWMutex
	users  []User
	uids   []string
	hasher password.Hasher
}

var _ UserProvider = (*MemoryProvider)(nil)

// NewMemoryProvider returns an empty provider. uids nil means DefaultUIDs.
func NewMemoryProvider(hasher password.Hasher, uids []string) (*MemoryProvider, error) {
	if uids == nil {
		uids = DefaultUIDs
	}
	if err := validUIDs(uids); err != nil {
		return nil, err
	}
	return &MemoryProvider{uids: append([]string(nil), uids...), hasher: hasher}, nil
}

// Add stores u as is. Normalized columns are derived when missing.
func (m *MemoryProvider) Add(u User) {
	if u.Username != nil && u.UsernameNorm == nil {
		n := NormalizeUsername(*u.Username)
		u.UsernameNorm = &n
	}
	if u.Email != nil && u.EmailNorm == nil {
		n := NormalizeEmail(*u.Email)
		u.EmailNorm = &n
	}
	m.mu.Lock()
	m.users = append(m.users, u)
	m.mu.Unlock()
}

// CreateUser hashes the password and stores a new user, enforcing the same
// uniqueness rules as the Postgres provider.
func (m *MemoryProvider) CreateUser(ctx context.Context, in CreateUserInput) (CreateUserResult, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return CreateUserResult{}, err
	}
	username := trimPtr(in.Username)
	email := trimPtr(in.Email)
	if username == nil && email == nil {
		return CreateUserResult{}, invalid(op, "username or email is required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return CreateUserResult{}, invalid(op, "password is required")
	}
	if m.hasher == nil {
		return CreateUserResult{}, invalid(op, "no password hasher configured")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	digest, err := m.hasher.Hash(in.Password)
	if err != nil {
		return CreateUserResult{}, invalid(op, err.Error())
	}
	id, err := NewULID(now)
	if err != nil {
		return CreateUserResult{}, err
	}

	u := User{ID: id, Username: username, Email: email, DisplayName: trimPtr(in.DisplayName), PasswordHash: digest, CreatedAt: now}
	if username != nil {
		n := NormalizeUsername(*username)
		u.UsernameNorm = &n
	}
	if email != nil {
		n := NormalizeEmail(*email)
		u.EmailNorm = &n
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if eqPtr(existing.UsernameNorm, u.UsernameNorm) {
			return CreateUserResult{}, ConflictError{Op: op, Field: "username"}
		}
		if eqPtr(existing.EmailNorm, u.EmailNorm) {
			return CreateUserResult{}, ConflictError{Op: op, Field: "email"}
		}
	}
	m.users = append(m.users, u)
	return CreateUserResult{User: u}, nil
}

func (m *MemoryProvider) FindByID(ctx context.Context, id string) (GuardUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.ID == id {
			return m.wrap(u), nil
		}
	}
	return nil, nil
}

func (m *MemoryProvider) FindByUID(ctx context.Context, uid string) (GuardUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, col := range m.uids {
		want := normalizeUID(col, uid)
		if want == "" {
			continue
		}
		for _, u := range m.users {
			var have *string
			switch col {
			case UIDEmail:
				have = u.EmailNorm
			case UIDUsername:
				have = u.UsernameNorm
			}
			if have != nil && *have == want {
				return m.wrap(u), nil
			}
		}
	}
	return nil, nil
}

func (m *MemoryProvider) CreateUserForGuard(raw any) (GuardUser, error) {
	u, ok := userRecord(raw)
	if !ok {
		return nil, invalidUserObject("identity.MemoryProvider.CreateUserForGuard", raw)
	}
	return m.wrap(u), nil
}

func (m *MemoryProvider) wrap(u User) GuardUser {
	return NewPrincipal(u.ID, u, u.PasswordHash, m.hasher)
}

// userRecord accepts User or a non-nil *User with an id.
func userRecord(raw any) (User, bool) {
	switch v := raw.(type) {
	case User:
		return v, v.ID != ""
	case *User:
		if v == nil || v.ID == "" {
			return User{}, false
		}
		return *v, true
	default:
		return User{}, false
	}
}

func eqPtr(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// trimPtr trims a string pointer, returning nil if result is empty.
func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}
