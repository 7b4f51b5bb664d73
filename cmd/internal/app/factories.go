package app

import (
	"context"
	"fmt"
	"log/slog"

	"warden/cmd/identity"
	"warden/cmd/internal/auth"
	"warden/cmd/internal/auth/access"
	"warden/cmd/internal/auth/basic"
	"warden/cmd/internal/auth/guard"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/auth/tokens"
	"warden/cmd/security/token"
)

// guardDeps are the process-wide collaborators shared by every guard.
type guardDeps struct {
	users    identity.UserProvider
	verifier *guard.CredentialVerifier
	digester token.Digester
	emitter  guard.Emitter
	log      *slog.Logger
	session  session.Config
}

// builtGuards is the result of turning a GuardsFile into factories.
type builtGuards struct {
	factories map[string]auth.Factory
	revokers  []tokens.RelationalProvider
	drivers   map[string]string
	// maxRemember is the longest remember-me TTL of any session guard.
	maxRemember int64
}

func (a *App) buildGuards(ctx context.Context, gf GuardsFile, d guardDeps) (builtGuards, error) {
	out := builtGuards{
		factories: make(map[string]auth.Factory, len(gf.Guards)),
		drivers:   make(map[string]string, len(gf.Guards)),
	}

	for _, name := range gf.Names() {
		gc := gf.Guards[name]
		out.drivers[name] = gc.Driver
		log := d.log.With("guard", name)

		switch gc.Driver {
		case session.Driver:
			codec := tokens.NewCodec(tokens.WithDigester(d.digester))
			p, err := a.tokenProvider(ctx, gc, tokens.KindRememberMe, codec)
			if err != nil {
				return builtGuards{}, fmt.Errorf("guard %q: %w", name, err)
			}
			out.addRevoker(p)

			opts := session.Options{RememberMeTTL: gc.RememberMeTTL, TokenBytes: gc.TokenBytes}
			if opts.RememberMeTTL <= 0 {
				opts.RememberMeTTL = d.session.RememberMeTTL
			}
			if opts.TokenBytes <= 0 {
				opts.TokenBytes = d.session.RememberMeTokenBytes
			}
			if s := int64(opts.RememberMeTTL.Seconds()); s > out.maxRemember {
				out.maxRemember = s
			}

			out.factories[name] = func(rc *auth.RequestContext) (guard.Guard, error) {
				g, err := session.New(name, session.Deps{
					Session:  rc.Session,
					Cookies:  rc.Cookies,
					Users:    d.users,
					Verifier: d.verifier,
					Tokens:   p,
					Codec:    codec,
					Emitter:  d.emitter,
					Log:      log,
				}, opts)
				if err != nil {
					return nil, err
				}
				return g, nil
			}

		case access.Driver:
			codec := tokens.NewCodec(tokens.WithDigester(d.digester), tokens.WithValueSize(gc.TokenBytes))
			p, err := a.tokenProvider(ctx, gc, tokens.KindOpaque, codec)
			if err != nil {
				return builtGuards{}, fmt.Errorf("guard %q: %w", name, err)
			}
			out.addRevoker(p)

			out.factories[name] = func(rc *auth.RequestContext) (guard.Guard, error) {
				g, err := access.New(name, access.Deps{
					Request: rc.Request,
					Users:   d.users,
					Tokens:  p,
					Codec:   codec,
					Emitter: d.emitter,
					Log:     log,
				})
				if err != nil {
					return nil, err
				}
				return g, nil
			}

		case basic.Driver:
			realm := gc.Realm
			out.factories[name] = func(rc *auth.RequestContext) (guard.Guard, error) {
				g, err := basic.New(name, basic.Deps{
					Request:  rc.Request,
					Verifier: d.verifier,
					Emitter:  d.emitter,
					Log:      log,
					Realm:    realm,
				})
				if err != nil {
					return nil, err
				}
				return g, nil
			}
		}
	}
	return out, nil
}

func (b *builtGuards) addRevoker(p tokens.Provider) {
	if rp, ok := p.(tokens.RelationalProvider); ok {
		b.revokers = append(b.revokers, rp)
	}
}

// tokenProvider builds the token store of one guard. It returns a nil
// Provider for BackendNone.
func (a *App) tokenProvider(ctx context.Context, gc GuardConfig, kind tokens.Kind, codec *tokens.Codec) (tokens.Provider, error) {
	backend := gc.Tokens
	if backend == BackendAuto {
		backend = BackendMemory
		if a.pool != nil {
			backend = BackendPostgres
		}
	}

	switch backend {
	case BackendNone:
		return nil, nil
	case BackendMemory:
		return tokens.NewMemoryProvider(kind, codec.Clock()), nil
	case BackendPostgres:
		if a.pool == nil {
			return nil, fmt.Errorf("%w: postgres tokens need WARDEN_DATABASE_URL", ErrConfig)
		}
		opts := []tokens.PostgresOption{tokens.WithSchema(a.cfg.DBSchema), tokens.WithPostgresClock(codec.Clock())}
		if gc.TokenTable != "" {
			opts = append(opts, tokens.WithTable(gc.TokenTable))
		}
		p, err := tokens.NewPostgresProvider(a.pool, kind, opts...)
		if err != nil {
			return nil, err
		}
		if a.cfg.DBAutoMigrate {
			if err := p.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return p, nil
	case BackendRedis:
		if a.redis == nil {
			return nil, fmt.Errorf("%w: redis tokens need WARDEN_REDIS_URL", ErrConfig)
		}
		p, err := tokens.NewRedisProvider(a.redis, kind,
			tokens.WithRedisPrefix(a.cfg.RedisPrefix+"tokens:"),
			tokens.WithRedisClock(codec.Clock()))
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown token backend %q", ErrConfig, backend)
	}
}

// checkAPIGuards makes sure the HTTP endpoints find the guards they expect.
func checkAPIGuards(b builtGuards, web, tok string, me []string) error {
	if b.drivers[web] != session.Driver {
		return fmt.Errorf("%w: api web guard %q must be a %s guard", ErrConfig, web, session.Driver)
	}
	if b.drivers[tok] != access.Driver {
		return fmt.Errorf("%w: api token guard %q must be an %s guard", ErrConfig, tok, access.Driver)
	}
	for _, name := range me {
		if _, ok := b.drivers[name]; !ok {
			return fmt.Errorf("%w: /me guard %q is not defined", ErrConfig, name)
		}
	}
	return nil
}
