// Package app wires the warden server runtime: config, logging, storage,
// guards and HTTP routes.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"warden/cmd/identity"
	"warden/cmd/internal/auth"
	"warden/cmd/internal/auth/api"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/guard"
	"warden/cmd/internal/auth/session"
	"warden/cmd/security/password"
)

// App is the warden server runtime. It owns the storage clients, the audit
// sink and the HTTP handler.
type App struct {
	cfg Config
	log Logger

	pool  *pgxpool.Pool
	redis *redis.Client

	reg     *prometheus.Registry
	audit   *audit.Sink
	sweeper *session.PostgresBackend

	handler http.Handler

	closeOnce sync.Once
}

// New constructs a fully wired App from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	digester, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}
	guards, err := LoadGuards(cfg.GuardsFile)
	if err != nil {
		return nil, err
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	apiCfg, err := api.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	hasher := password.Default(pwCfg)

	a := &App{cfg: cfg, log: log, reg: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.closeClients()
		}
	}()

	if cfg.DatabaseURL != "" {
		if a.pool, err = NewDBPool(ctx, cfg); err != nil {
			return nil, err
		}
		log.Info("db.enabled.postgres")
	} else {
		log.Info("db.disabled.inmemory")
	}
	if cfg.RedisURL != "" {
		if a.redis, err = NewRedisClient(ctx, cfg); err != nil {
			return nil, err
		}
		log.Info("redis.enabled")
	}

	users, err := a.userProvider(ctx, hasher)
	if err != nil {
		return nil, err
	}
	if err := seedDevUser(ctx, users, cfg); err != nil {
		return nil, err
	}
	verifier, err := guard.NewCredentialVerifier(users, hasher)
	if err != nil {
		return nil, err
	}

	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := guard.NewPrometheusEmitter(a.reg)
	if err != nil {
		return nil, err
	}
	metrics, err := newHTTPMetrics(a.reg)
	if err != nil {
		return nil, err
	}
	emitter := guard.Fanout{guard.SlogEmitter{Log: log}, prom}
	if a.pool != nil {
		w := audit.NewPostgresWriter(a.pool, cfg.DBSchema)
		if cfg.DBAutoMigrate {
			if err := w.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		a.audit = audit.NewSink(w, log, cfg.AuditBuffer)
		emitter = append(emitter, a.audit)
	}

	sessions, err := a.sessionBackend(ctx)
	if err != nil {
		return nil, err
	}

	built, err := a.buildGuards(ctx, guards, guardDeps{
		users:    users,
		verifier: verifier,
		digester: digester,
		emitter:  emitter,
		log:      log,
		session:  sessCfg,
	})
	if err != nil {
		return nil, err
	}
	if err := checkAPIGuards(built, apiCfg.WebGuard, apiCfg.TokenGuard, apiCfg.MeGuards); err != nil {
		return nil, err
	}
	manager, err := auth.NewManager(guards.Default, built.factories)
	if err != nil {
		return nil, err
	}

	cookieCodec, err := a.cookieCodec(built.maxRemember)
	if err != nil {
		return nil, err
	}

	opts := []api.HandlerOption{api.WithRevokers(built.revokers...)}
	if a.pool != nil {
		opts = append(opts, api.WithLoginThrottle(api.NewAuditLogThrottle(a.pool, cfg.DBSchema, apiCfg.WebGuard, apiCfg)))
	}
	authHandler := api.NewHandler(log, apiCfg, opts...)

	a.handler = a.routes(routeDeps{
		metrics:  metrics,
		sessions: session.NewSessions(sessions, sessCfg.IdleTTL),
		cookies:  cookieCodec,
		sessCfg:  sessCfg,
		manager:  manager,
		auth:     authHandler,
	})

	log.Info("guards.ready", "default", guards.Default, "guards", guards.Names(), "session_store", cfg.sessionStore())
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	bg, stopBG := context.WithCancel(ctx)
	defer stopBG()
	if a.audit != nil {
		go a.audit.Run(bg)
	}
	if a.sweeper != nil {
		go a.sweepSessions(bg, nonZeroDuration(a.cfg.SessionSweepInterval, 10*time.Minute))
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.pool != nil, "redis_enabled", a.redis != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		runErr = errors.Join(runErr, err)
	}
	a.Close(shutdownCtx)

	a.log.Info("server.stopped")
	return runErr
}

// Close flushes the audit log and releases storage clients. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) {
	a.closeOnce.Do(func() {
		if a.audit != nil {
			if err := a.audit.Close(ctx); err != nil {
				a.log.Error("auth.audit.close.fail", "err", err, "dropped", a.audit.Dropped())
			}
		}
		a.closeClients()
	})
}

func (a *App) closeClients() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) userProvider(ctx context.Context, hasher password.Hasher) (identity.UserProvider, error) {
	if a.pool == nil {
		return identity.NewMemoryProvider(hasher, nil)
	}
	p, err := identity.NewPostgresProvider(a.pool, hasher, identity.WithSchema(a.cfg.DBSchema))
	if err != nil {
		return nil, err
	}
	if a.cfg.DBAutoMigrate {
		if err := p.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// userCreator is implemented by the memory and Postgres user providers.
type userCreator interface {
	CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.CreateUserResult, error)
}

// seedDevUser creates WARDEN_DEV_USER when configured. An existing account
// is left alone.
func seedDevUser(ctx context.Context, users identity.UserProvider, cfg Config) error {
	if cfg.DevUser == "" {
		return nil
	}
	uc, ok := users.(userCreator)
	if !ok {
		return fmt.Errorf("%w: user provider cannot create users", ErrConfig)
	}
	in := identity.CreateUserInput{Password: cfg.DevPassword}
	uid := cfg.DevUser
	if strings.Contains(uid, "@") {
		in.Email = &uid
	} else {
		in.Username = &uid
	}
	if _, err := uc.CreateUser(ctx, in); err != nil && !identity.IsConflict(err) {
		return fmt.Errorf("seed dev user: %w", err)
	}
	return nil
}

func (a *App) sessionBackend(ctx context.Context) (session.Backend, error) {
	switch a.cfg.sessionStore() {
	case StoreRedis:
		return session.NewRedisBackend(a.redis, a.cfg.RedisPrefix+"session:"), nil
	case StorePostgres:
		b := session.NewPostgresBackend(a.pool, a.cfg.DBSchema, nil)
		if a.cfg.DBAutoMigrate {
			if err := b.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		a.sweeper = b
		return b, nil
	default:
		return session.NewMemoryBackend(nil), nil
	}
}

func (a *App) sweepSessions(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.sweeper.Sweep(ctx)
			if err != nil {
				a.log.Error("session.sweep.fail", "err", err)
				continue
			}
			if n > 0 {
				a.log.Debug("session.sweep", "deleted", n)
			}
		}
	}
}

// cookieCodec builds the securecookie codec for session and remember-me
// cookies. Its MaxAge must cover the longest remember-me TTL.
func (a *App) cookieCodec(maxRememberSeconds int64) (*securecookie.SecureCookie, error) {
	hashKey, err := decodeCookieKey("WARDEN_COOKIE_HASH_KEY", a.cfg.CookieHashKey, 32, hashKeySizes)
	if err != nil {
		return nil, err
	}
	blockKey, err := decodeCookieKey("WARDEN_COOKIE_BLOCK_KEY", a.cfg.CookieBlockKey, 32, blockKeySizes)
	if err != nil {
		return nil, err
	}
	if a.cfg.CookieHashKey == "" || a.cfg.CookieBlockKey == "" {
		a.log.Warn("cookie.keys.ephemeral", "hint", "set WARDEN_COOKIE_HASH_KEY and WARDEN_COOKIE_BLOCK_KEY to keep sessions across restarts")
	}

	sc := securecookie.New(hashKey, blockKey)
	if maxRememberSeconds > 0 {
		sc.MaxAge(int(maxRememberSeconds))
	}
	return sc, nil
}

// Block keys are AES keys; hash keys feed HMAC-SHA256.
var (
	hashKeySizes  = []int{16, 24, 32, 64}
	blockKeySizes = []int{16, 24, 32}
)

// decodeCookieKey decodes a base64 key, or generates n random bytes when
// raw is empty.
func decodeCookieKey(name, raw string, n int, sizes []int) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		key := securecookie.GenerateRandomKey(n)
		if key == nil {
			return nil, fmt.Errorf("%s: random key generation failed", name)
		}
		return key, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not base64: %v", ErrConfig, name, err)
	}
	if !slices.Contains(sizes, len(key)) {
		return nil, fmt.Errorf("%w: %s must decode to one of %v bytes, got %d", ErrConfig, name, sizes, len(key))
	}
	return key, nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
