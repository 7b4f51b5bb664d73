package guard

import (
	"context"

	"warden/cmd/identity"
)

// Guard is one named authentication strategy bound to a single request.
// Implementations are not safe for concurrent use.
type Guard interface {
	Name() string
	Driver() string

	// Authenticate resolves the request's principal. The first call does the
	// work; later calls in the same request return the cached outcome.
	Authenticate(ctx context.Context) (identity.GuardUser, error)

	// Check is Authenticate with authentication failures folded into false.
	Check(ctx context.Context) (bool, error)

	User() identity.GuardUser
	UserOrFail() (identity.GuardUser, error)
	Attempted() bool
	Authenticated() bool
}

// Challenger is implemented by guards that can describe how to retry, e.g.
// a WWW-Authenticate header value.
type Challenger interface {
	Challenge() string
}

// Check adapts an Authenticate result to Guard.Check.
func Check(u identity.GuardUser, err error) (bool, error) {
	switch {
	case err == nil:
		return u != nil, nil
	case IsAuthFailure(err):
		return false, nil
	default:
		return false, err
	}
}

// State tracks one request's authentication attempt for a guard.
// The zero value is ready to use.
type State struct {
	attempted bool
	user      identity.GuardUser
	err       error
}

// Run executes fn on the first call only and replays its outcome afterwards.
func (s *State) Run(fn func() (identity.GuardUser, error)) (identity.GuardUser, error) {
	if s.attempted {
		return s.user, s.err
	}
	s.attempted = true
	s.user, s.err = fn()
	if s.err != nil {
		s.user = nil
	}
	return s.user, s.err
}

// Set marks the request as authenticated as u (login).
func (s *State) Set(u identity.GuardUser) {
	s.attempted = true
	s.user = u
	s.err = nil
}

// Reset forgets the outcome (logout). Later Runs see a fresh request.
func (s *State) Reset() {
	*s = State{}
}

func (s *State) Attempted() bool          { return s.attempted }
func (s *State) Authenticated() bool      { return s.user != nil }
func (s *State) User() identity.GuardUser { return s.user }

// Base implements the bookkeeping half of Guard. Concrete guards embed it
// and add Authenticate and Check.
type Base struct {
	name   string
	driver string
	State  State
}

func NewBase(name, driver string) Base {
	return Base{name: name, driver: driver}
}

func (b *Base) Name() string             { return b.name }
func (b *Base) Driver() string           { return b.driver }
func (b *Base) User() identity.GuardUser { return b.State.User() }
func (b *Base) Attempted() bool          { return b.State.Attempted() }
func (b *Base) Authenticated() bool      { return b.State.Authenticated() }

// UserOrFail returns the authenticated user or ErrUnauthorizedAccess.
func (b *Base) UserOrFail() (identity.GuardUser, error) {
	if u := b.State.User(); u != nil {
		return u, nil
	}
	return nil, &UnauthorizedError{Guards: []string{b.name}}
}
