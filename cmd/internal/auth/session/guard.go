package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/guard"
	"warden/cmd/internal/auth/tokens"
)

// Driver is the driver name of session guards.
const Driver = "session"

// Deps are the collaborators of a session guard. Session, Cookies, Users
// and Codec are required. A nil Tokens disables remember me.
type Deps struct {
	Session  Store
	Cookies  CookieJar
	Users    identity.UserProvider
	Verifier *guard.CredentialVerifier
	Tokens   tokens.Provider
	Codec    *tokens.Codec
	Emitter  guard.Emitter
	Log      *slog.Logger
}

// Options tune remember-me tokens.
type Options struct {
	RememberMeTTL time.Duration
	TokenBytes    int
}

// Guard authenticates browser requests from a server-side session, falling
// back to a rotating remember-me cookie.
type Guard struct {
	guard.Base

	session  Store
	cookies  CookieJar
	users    identity.UserProvider
	verifier *guard.CredentialVerifier
	tokens   tokens.Provider
	codec    *tokens.Codec
	emitter  guard.Emitter
	log      *slog.Logger
	opts     Options

	viaRemember bool
	loggedOut   bool
	// series of the remember-me token this request knows about, either read
	// from the cookie or issued by login/rotation.
	series string
}

var _ guard.Guard = (*Guard)(nil)

func New(name string, d Deps, opts Options) (*Guard, error) {
	switch {
	case name == "":
		return nil, fmt.Errorf("session: guard name is required")
	case d.Session == nil:
		return nil, ErrNoSession
	case d.Cookies == nil || d.Users == nil || d.Codec == nil:
		return nil, fmt.Errorf("session: guard %q: cookies, users and codec are required", name)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if opts.RememberMeTTL <= 0 {
		opts.RememberMeTTL = DefaultConfig().RememberMeTTL
	}
	return &Guard{
		Base:     guard.NewBase(name, Driver),
		session:  d.Session,
		cookies:  d.Cookies,
		users:    d.Users,
		verifier: d.Verifier,
		tokens:   d.Tokens,
		codec:    d.Codec,
		emitter:  d.Emitter,
		log:      d.Log.With("guard", name),
		opts:     opts,
	}, nil
}

// SessionKey is the session entry holding the user id.
func (g *Guard) SessionKey() string { return "auth_" + g.Name() }

// RememberCookie is the cookie holding the remember-me credential.
func (g *Guard) RememberCookie() string { return "remember_" + g.Name() }

// ViaRemember reports whether this request was authenticated from the
// remember-me cookie rather than the session.
func (g *Guard) ViaRemember() bool { return g.viaRemember }

// RememberMeTTL is the lifetime of issued remember-me tokens and cookies.
func (g *Guard) RememberMeTTL() time.Duration { return g.opts.RememberMeTTL }

func (g *Guard) emit(ctx context.Context, suffix string, u identity.GuardUser, err error, remember bool) {
	guard.Emit(ctx, g.emitter, guard.Event{
		Name:       guard.EventName(guard.FamilySession, suffix),
		Guard:      g.Name(),
		User:       u,
		Err:        err,
		RememberMe: remember,
	})
}

// Login stores user in the session and, with remember, issues a
// remember-me token and cookie.
func (g *Guard) Login(ctx context.Context, user identity.GuardUser, remember bool) error {
	if user == nil || user.ID() == "" {
		return identity.OpError{Op: "session.login", Kind: identity.ErrInvalidUserObject, Msg: "nil user"}
	}
	if remember && g.tokens == nil {
		return ErrRememberMeDisabled
	}

	g.emit(ctx, guard.LoginAttempted, user, nil, remember)

	if err := g.session.Put(ctx, g.SessionKey(), user.ID()); err != nil {
		return err
	}
	if remember {
		if err := g.issueRememberToken(ctx, user.ID()); err != nil {
			return err
		}
	}

	g.State.Set(user)
	g.loggedOut = false
	g.viaRemember = false

	g.log.Debug("session.login", "user_id", user.ID(), "remember", remember)
	g.emit(ctx, guard.LoginSucceeded, user, nil, remember)
	return nil
}

// Attempt verifies uid/password and logs the user in on success.
func (g *Guard) Attempt(ctx context.Context, uid, plain string, remember bool) (identity.GuardUser, error) {
	if g.verifier == nil {
		return nil, fmt.Errorf("session: guard %q has no credential verifier", g.Name())
	}
	user, err := g.verifier.Verify(ctx, g.Name(), uid, plain)
	if err != nil {
		if guard.IsAuthFailure(err) {
			g.emit(ctx, guard.LoginFailed, nil, err, remember)
		}
		return nil, err
	}
	if err := g.Login(ctx, user, remember); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate resolves the user once per request. Every attempt ends in
// authentication_succeeded or authentication_failed, including storage errors.
func (g *Guard) Authenticate(ctx context.Context) (identity.GuardUser, error) {
	return g.State.Run(func() (identity.GuardUser, error) {
		u, err := g.authenticate(ctx)
		if err != nil && !guard.IsAuthFailure(err) {
			g.emit(ctx, guard.AuthenticationFailed, nil, err, false)
		}
		return u, err
	})
}

func (g *Guard) Check(ctx context.Context) (bool, error) {
	return guard.Check(g.Authenticate(ctx))
}

func (g *Guard) authenticate(ctx context.Context) (identity.GuardUser, error) {
	g.emit(ctx, guard.AuthenticationAttempted, nil, nil, false)

	id, ok, err := g.session.Get(ctx, g.SessionKey())
	if err != nil {
		return nil, err
	}
	if ok && id != "" {
		user, err := g.users.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if user == nil {
			if err := g.session.Forget(ctx, g.SessionKey()); err != nil {
				return nil, err
			}
			return nil, g.fail(ctx, "session user not found")
		}
		g.emit(ctx, guard.AuthenticationSucceeded, user, nil, false)
		return user, nil
	}

	return g.recall(ctx)
}

// recall authenticates from the remember-me cookie and rotates the token.
func (g *Guard) recall(ctx context.Context) (identity.GuardUser, error) {
	if g.tokens == nil {
		return nil, g.fail(ctx, "no session")
	}
	raw, ok := g.cookies.Get(g.RememberCookie())
	if !ok || raw == "" {
		return nil, g.fail(ctx, "no session")
	}

	series, value, err := tokens.ParseCredential(raw)
	if err != nil {
		return nil, g.fail(ctx, "malformed remember-me cookie")
	}
	g.series = series

	tok, err := g.tokens.TokenBySeries(ctx, series)
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.Guard != g.Name() || tok.Kind != tokens.KindRememberMe || !g.codec.Check(tok, value) {
		return nil, g.fail(ctx, "invalid remember-me token")
	}

	user, err := g.users.FindByID(ctx, tok.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		if err := g.tokens.DeleteToken(ctx, series); err != nil {
			return nil, err
		}
		return nil, g.fail(ctx, "remember-me user not found")
	}

	if err := g.tokens.DeleteToken(ctx, series); err != nil {
		return nil, err
	}
	if err := g.issueRememberToken(ctx, user.ID()); err != nil {
		return nil, err
	}
	if err := g.session.Put(ctx, g.SessionKey(), user.ID()); err != nil {
		return nil, err
	}

	g.viaRemember = true
	g.log.Debug("session.remember.rotated", "user_id", user.ID())
	g.emit(ctx, guard.AuthenticationSucceeded, user, nil, true)
	return user, nil
}

func (g *Guard) issueRememberToken(ctx context.Context, userID string) error {
	tok, err := g.codec.Create(userID, g.Name(), tokens.KindRememberMe, g.opts.RememberMeTTL, g.opts.TokenBytes)
	if err != nil {
		return err
	}
	cred := tok.Credential()
	if err := g.tokens.CreateToken(ctx, tok); err != nil {
		return err
	}
	if err := g.cookies.Set(g.RememberCookie(), cred, g.opts.RememberMeTTL); err != nil {
		return err
	}
	g.series = tok.Series
	return nil
}

// fail drops a presented remember-me cookie and reports an auth failure.
func (g *Guard) fail(ctx context.Context, msg string) error {
	if _, ok := g.cookies.Get(g.RememberCookie()); ok {
		g.cookies.Clear(g.RememberCookie())
	}
	err := guard.InvalidCredentials(g.Name(), msg)
	g.emit(ctx, guard.AuthenticationFailed, nil, err, false)
	return err
}

// Logout forgets the session user and revokes the remember-me token.
// Calling it again in the same request is a no-op.
func (g *Guard) Logout(ctx context.Context) error {
	if g.loggedOut {
		return nil
	}
	user := g.State.User()

	if err := g.session.Forget(ctx, g.SessionKey()); err != nil {
		return err
	}

	if g.tokens != nil {
		var errs []error
		seen := map[string]bool{}
		revoke := func(series string) {
			if series == "" || seen[series] {
				return
			}
			seen[series] = true
			errs = append(errs, g.tokens.DeleteToken(ctx, series))
		}
		revoke(g.series)
		if raw, ok := g.cookies.Get(g.RememberCookie()); ok {
			if series, _, err := tokens.ParseCredential(raw); err == nil {
				revoke(series)
			}
			g.cookies.Clear(g.RememberCookie())
		} else if g.series != "" {
			g.cookies.Clear(g.RememberCookie())
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}

	g.State.Reset()
	g.series = ""
	g.viaRemember = false
	g.loggedOut = true

	g.emit(ctx, guard.LoggedOut, user, nil, false)
	return nil
}
