package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/securecookie"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"warden/cmd/internal/auth"
	"warden/cmd/internal/auth/api"
	"warden/cmd/internal/auth/session"
)

type routeDeps struct {
	metrics  *httpMetrics
	sessions *session.Sessions
	cookies  *securecookie.SecureCookie
	sessCfg  session.Config
	manager  *auth.Manager
	auth     *api.Handler
}

// routes builds the router. Probes and metrics skip the session machinery;
// everything else gets a session, an authenticator and audit metadata.
func (a *App) routes(d routeDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID)
	r.Use(WithRequestLogging(a.log, d.metrics))
	r.Use(WithSecurityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return WithCORS(next, a.cfg, a.log) })
		r.Use(d.auth.RequestMeta)
		r.Use(session.Middleware(d.sessions, d.cookies, d.sessCfg, a.log))
		r.Use(d.manager.Middleware)
		d.auth.Register(r)
	})

	return r
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.cfg.ReadinessRequireDB && a.pool == nil {
		http.Error(w, "db not configured", http.StatusServiceUnavailable)
		return
	}

	if a.pool != nil {
		if err := PingDB(r.Context(), a.pool, 2*time.Second); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.db.not_ready", "err", err)
			return
		}
	}
	if a.redis != nil {
		if err := PingRedis(r.Context(), a.redis, 2*time.Second); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.redis.not_ready", "err", err)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}
