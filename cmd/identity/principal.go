package identity

import (
	"fmt"

	"warden/cmd/security/password"
)

// GuardUser is the backend-independent view of a principal handed to guards.
type GuardUser interface {
	ID() string
	Original() any
	VerifyPassword(plain string) (bool, error)
}

// Principal adapts a provider-specific record of type T into a GuardUser.
type Principal[T any] struct {
	id     string
	record T
	digest string
	hasher password.Hasher
}

var _ GuardUser = (*Principal[User])(nil)

// NewPrincipal wraps record. digest is the stored password hash (may be
// empty) and hasher verifies candidates against it.
func NewPrincipal[T any](id string, record T, digest string, hasher password.Hasher) *Principal[T] {
	return &Principal[T]{id: id, record: record, digest: digest, hasher: hasher}
}

func (p *Principal[T]) ID() string    { return p.id }
func (p *Principal[T]) Original() any { return p.record }

// Record returns the typed record.
func (p *Principal[T]) Record() T { return p.record }

// VerifyPassword reports whether plain matches the stored digest.
// Accounts without a digest never match.
func (p *Principal[T]) VerifyPassword(plain string) (bool, error) {
	if p.digest == "" || p.hasher == nil {
		return false, nil
	}
	ok, err := p.hasher.Verify(plain, p.digest)
	if err != nil {
		return false, fmt.Errorf("identity: verify password for %s: %w", p.id, err)
	}
	return ok, nil
}

// As returns the original record of u when it has type T.
func As[T any](u GuardUser) (T, bool) {
	var zero T
	if u == nil {
		return zero, false
	}
	if p, ok := u.(*Principal[T]); ok {
		return p.record, true
	}
	rec, ok := u.Original().(T)
	return rec, ok
}
