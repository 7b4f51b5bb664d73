package access

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/guard"
	"warden/cmd/internal/auth/tokens"
)

// Driver is the driver name of access token guards.
const Driver = "access_tokens"

// MetaName is the token meta key holding the client-chosen token name.
const MetaName = "name"

type Deps struct {
	Request *http.Request
	Users   identity.UserProvider
	Tokens  tokens.Provider
	Codec   *tokens.Codec
	Emitter guard.Emitter
	Log     *slog.Logger
}

// Guard authenticates stateless requests from a bearer token. Tokens are
// scoped to the guard name that issued them.
type Guard struct {
	guard.Base

	req     *http.Request
	users   identity.UserProvider
	tokens  tokens.Provider
	codec   *tokens.Codec
	emitter guard.Emitter
	log     *slog.Logger

	token *tokens.Token
}

var _ guard.Guard = (*Guard)(nil)

func New(name string, d Deps) (*Guard, error) {
	if name == "" {
		return nil, fmt.Errorf("access: guard name is required")
	}
	if d.Users == nil || d.Tokens == nil || d.Codec == nil {
		return nil, fmt.Errorf("access: guard %q: users, tokens and codec are required", name)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &Guard{
		Base:    guard.NewBase(name, Driver),
		req:     d.Request,
		users:   d.Users,
		tokens:  d.Tokens,
		codec:   d.Codec,
		emitter: d.Emitter,
		log:     d.Log.With("guard", name),
	}, nil
}

// Token returns the token that authenticated the current request.
func (g *Guard) Token() *tokens.Token { return g.token }

func (g *Guard) emit(ctx context.Context, suffix string, u identity.GuardUser, err error) {
	guard.Emit(ctx, g.emitter, guard.Event{
		Name:  guard.EventName(guard.FamilyAccessTokens, suffix),
		Guard: g.Name(),
		User:  u,
		Err:   err,
	})
}

func (g *Guard) Authenticate(ctx context.Context) (identity.GuardUser, error) {
	return g.State.Run(func() (identity.GuardUser, error) {
		u, err := g.authenticate(ctx)
		if err != nil && !guard.IsAuthFailure(err) {
			g.emit(ctx, guard.AuthenticationFailed, nil, err)
		}
		return u, err
	})
}

func (g *Guard) Check(ctx context.Context) (bool, error) {
	return guard.Check(g.Authenticate(ctx))
}

func (g *Guard) authenticate(ctx context.Context) (identity.GuardUser, error) {
	g.emit(ctx, guard.AuthenticationAttempted, nil, nil)

	raw, ok := BearerToken(g.req)
	if !ok {
		return nil, g.fail(ctx, "missing bearer token")
	}
	series, value, err := tokens.ParseCredential(raw)
	if err != nil {
		return nil, g.fail(ctx, "malformed bearer token")
	}

	tok, err := g.tokens.TokenBySeries(ctx, series)
	if err != nil {
		return nil, err
	}
	switch {
	case tok == nil:
		return nil, g.fail(ctx, "unknown token")
	case tok.Kind != tokens.KindOpaque:
		return nil, g.fail(ctx, "wrong token kind")
	case tok.Guard != g.Name():
		return nil, g.fail(ctx, "token issued for another guard")
	case !g.codec.Check(tok, value):
		return nil, g.fail(ctx, "token mismatch")
	}

	user, err := g.users.FindByID(ctx, tok.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, g.fail(ctx, "token user not found")
	}

	g.token = tok
	g.emit(ctx, guard.AuthenticationSucceeded, user, nil)
	return user, nil
}

func (g *Guard) fail(ctx context.Context, msg string) error {
	err := guard.InvalidCredentials(g.Name(), msg)
	g.log.Debug("auth.access.fail", "reason", msg)
	g.emit(ctx, guard.AuthenticationFailed, nil, err)
	return err
}

// CreateToken issues and stores a token for user. The returned token still
// carries its plain value; this is the only time it is available.
// expiresIn <= 0 issues a non-expiring token.
func (g *Guard) CreateToken(ctx context.Context, user identity.GuardUser, name string, expiresIn time.Duration) (*tokens.Token, error) {
	if user == nil || user.ID() == "" {
		return nil, identity.OpError{Op: "access.create_token", Kind: identity.ErrInvalidUserObject, Msg: "nil user"}
	}
	tok, err := g.codec.Create(user.ID(), g.Name(), tokens.KindOpaque, expiresIn, 0)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		tok.Meta = map[string]string{MetaName: name}
	}
	if err := g.tokens.CreateToken(ctx, tok); err != nil {
		return nil, err
	}
	g.log.Info("auth.access.token.created", "user_id", user.ID(), "token", tok)
	return tok, nil
}

// InvalidateToken deletes the token that authenticated this request.
func (g *Guard) InvalidateToken(ctx context.Context) error {
	if g.token == nil {
		return &guard.UnauthorizedError{Guards: []string{g.Name()}}
	}
	if err := g.tokens.DeleteToken(ctx, g.token.Series); err != nil {
		return err
	}
	g.log.Info("auth.access.token.invalidated", "token", g.token)
	g.token = nil
	g.State.Reset()
	return nil
}

// BearerToken extracts the credential of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
