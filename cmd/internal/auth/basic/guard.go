package basic

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/guard"
)

// Driver is the driver name of basic auth guards.
const Driver = "basic_auth"

// DefaultRealm is used when Deps.Realm is empty.
const DefaultRealm = "Authenticate"

type Deps struct {
	Request  *http.Request
	Verifier *guard.CredentialVerifier
	Emitter  guard.Emitter
	Log      *slog.Logger
	Realm    string
}

// Guard authenticates from an "Authorization: Basic" header.
type Guard struct {
	guard.Base

	req      *http.Request
	verifier *guard.CredentialVerifier
	emitter  guard.Emitter
	log      *slog.Logger
	realm    string
}

var (
	_ guard.Guard      = (*Guard)(nil)
	_ guard.Challenger = (*Guard)(nil)
)

func New(name string, d Deps) (*Guard, error) {
	if name == "" {
		return nil, fmt.Errorf("basic: guard name is required")
	}
	if d.Verifier == nil {
		return nil, fmt.Errorf("basic: guard %q: credential verifier is required", name)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Realm == "" {
		d.Realm = DefaultRealm
	}
	return &Guard{
		Base:     guard.NewBase(name, Driver),
		req:      d.Request,
		verifier: d.Verifier,
		emitter:  d.Emitter,
		log:      d.Log.With("guard", name),
		realm:    d.Realm,
	}, nil
}

// Challenge is the WWW-Authenticate value asking the client for credentials.
func (g *Guard) Challenge() string {
	return fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", g.realm)
}

func (g *Guard) emit(ctx context.Context, suffix string, u identity.GuardUser, err error) {
	guard.Emit(ctx, g.emitter, guard.Event{
		Name:  guard.EventName(guard.FamilyBasic, suffix),
		Guard: g.Name(),
		User:  u,
		Err:   err,
	})
}

func (g *Guard) Authenticate(ctx context.Context) (identity.GuardUser, error) {
	return g.State.Run(func() (identity.GuardUser, error) {
		return g.authenticate(ctx)
	})
}

func (g *Guard) Check(ctx context.Context) (bool, error) {
	return guard.Check(g.Authenticate(ctx))
}

func (g *Guard) authenticate(ctx context.Context) (identity.GuardUser, error) {
	g.emit(ctx, guard.AuthenticationAttempted, nil, nil)

	uid, plain, ok := Credentials(g.req)
	if !ok {
		err := guard.InvalidCredentials(g.Name(), "missing or malformed basic credentials")
		g.emit(ctx, guard.AuthenticationFailed, nil, err)
		return nil, err
	}

	user, err := g.verifier.Verify(ctx, g.Name(), uid, plain)
	if err != nil {
		g.log.Debug("auth.basic.fail", "err", err)
		g.emit(ctx, guard.AuthenticationFailed, nil, err)
		return nil, err
	}

	g.emit(ctx, guard.CredentialsVerified, user, nil)
	g.emit(ctx, guard.AuthenticationSucceeded, user, nil)
	return user, nil
}

// Credentials decodes "Authorization: Basic base64(uid:password)". The
// password may contain colons; the uid may not.
func Credentials(r *http.Request) (uid, plain string, ok bool) {
	if r == nil {
		return "", "", false
	}
	h := r.Header.Get("Authorization")
	const prefix = "basic "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(h[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
