package auth

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/guard"
	"warden/cmd/internal/auth/session"
)

// RequestContext is what a guard factory may bind a guard to.
type RequestContext struct {
	Request *http.Request
	Writer  http.ResponseWriter
	Session session.Store
	Cookies session.CookieJar
}

// Factory builds the guard of one request.
type Factory func(rc *RequestContext) (guard.Guard, error)

// Manager maps guard names to factories. It is immutable after NewManager
// and safe for concurrent use.
type Manager struct {
	def       string
	factories map[string]Factory
}

func NewManager(defaultGuard string, factories map[string]Factory) (*Manager, error) {
	if len(factories) == 0 {
		return nil, fmt.Errorf("%w: no guards", ErrConfig)
	}
	m := &Manager{def: defaultGuard, factories: make(map[string]Factory, len(factories))}
	for name, f := range factories {
		if name == "" || f == nil {
			return nil, fmt.Errorf("%w: guard %q has no factory", ErrConfig, name)
		}
		m.factories[name] = f
	}
	if _, ok := m.factories[defaultGuard]; !ok {
		return nil, fmt.Errorf("%w: default guard %q is not defined", ErrConfig, defaultGuard)
	}
	return m, nil
}

func (m *Manager) DefaultGuard() string { return m.def }

// Names returns the configured guard names, sorted.
func (m *Manager) Names() []string {
	out := make([]string, 0, len(m.factories))
	for name := range m.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether name is configured.
func (m *Manager) Has(name string) bool {
	_, ok := m.factories[name]
	return ok
}

func (m *Manager) NewAuthenticator(rc *RequestContext) *Authenticator {
	if rc == nil {
		rc = &RequestContext{}
	}
	return &Authenticator{m: m, rc: rc, guards: make(map[string]guard.Guard)}
}

// Authenticator is the per-request view of a Manager. Not safe for
// concurrent use.
type Authenticator struct {
	m      *Manager
	rc     *RequestContext
	guards map[string]guard.Guard
	via    guard.Guard
}

// Use returns the guard called name, constructing it on first use. An
// empty name selects the default guard.
func (a *Authenticator) Use(name string) (guard.Guard, error) {
	if name == "" {
		name = a.m.def
	}
	if g, ok := a.guards[name]; ok {
		return g, nil
	}
	f, ok := a.m.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGuard, name)
	}
	g, err := f(a.rc)
	if err != nil {
		return nil, fmt.Errorf("auth: build guard %q: %w", name, err)
	}
	a.guards[name] = g
	return g, nil
}

type options struct {
	loginRoute string
}

// Option tunes AuthenticateUsing.
type Option func(*options)

// WithLoginRoute sets UnauthorizedError.RedirectTo.
func WithLoginRoute(path string) Option {
	return func(o *options) { o.loginRoute = path }
}

// Authenticate authenticates with the default guard.
func (a *Authenticator) Authenticate(ctx context.Context, opts ...Option) (identity.GuardUser, error) {
	return a.AuthenticateUsing(ctx, nil, opts...)
}

// AuthenticateUsing tries the named guards in order and returns the first
// user found. Guards after the first success are not constructed. When
// every guard fails the error is a *guard.UnauthorizedError naming them;
// any other error stops the chain and is returned as is.
func (a *Authenticator) AuthenticateUsing(ctx context.Context, names []string, opts ...Option) (identity.GuardUser, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(names) == 0 {
		names = []string{a.m.def}
	}

	for _, name := range names {
		g, err := a.Use(name)
		if err != nil {
			return nil, err
		}
		ok, err := g.Check(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			a.via = g
			return g.User(), nil
		}
	}
	return nil, &guard.UnauthorizedError{Guards: append([]string(nil), names...), RedirectTo: o.loginRoute}
}

// Via returns the guard that authenticated the request, or nil.
func (a *Authenticator) Via() guard.Guard { return a.via }

// User returns the authenticated user, or nil.
func (a *Authenticator) User() identity.GuardUser {
	if a.via == nil {
		return nil
	}
	return a.via.User()
}

// Challenges collects the retry hints of the attempted guards, e.g. for
// WWW-Authenticate headers.
func (a *Authenticator) Challenges(names []string) []string {
	var out []string
	for _, name := range names {
		g, ok := a.guards[name]
		if !ok {
			continue
		}
		if c, ok := g.(guard.Challenger); ok {
			out = append(out, c.Challenge())
		}
	}
	return out
}

type ctxKey struct{}

// WithAuthenticator attaches a to ctx.
func WithAuthenticator(ctx context.Context, a *Authenticator) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the request's Authenticator.
func FromContext(ctx context.Context) (*Authenticator, bool) {
	a, ok := ctx.Value(ctxKey{}).(*Authenticator)
	return a, ok
}

// Middleware attaches an Authenticator to every request. Session and
// cookie transport are taken from the context when session.Middleware ran
// first.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := &RequestContext{Request: r, Writer: w}
		if s, ok := session.StoreFromContext(r.Context()); ok {
			rc.Session = s
		}
		if j, ok := session.CookiesFromContext(r.Context()); ok {
			rc.Cookies = j
		}
		a := m.NewAuthenticator(rc)
		next.ServeHTTP(w, r.WithContext(WithAuthenticator(r.Context(), a)))
	})
}
