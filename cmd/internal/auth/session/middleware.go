package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"warden/cmd/identity/ids"
)

type ctxKey int

const (
	storeKey ctxKey = iota
	cookiesKey
)

// WithStore attaches a session Store to ctx.
func WithStore(ctx context.Context, s Store) context.Context {
	return context.WithValue(ctx, storeKey, s)
}

// StoreFromContext returns the Store attached by Middleware.
func StoreFromContext(ctx context.Context) (Store, bool) {
	s, ok := ctx.Value(storeKey).(Store)
	return s, ok
}

// WithCookies attaches a CookieJar to ctx.
func WithCookies(ctx context.Context, j CookieJar) context.Context {
	return context.WithValue(ctx, cookiesKey, j)
}

// CookiesFromContext returns the CookieJar attached by Middleware.
func CookiesFromContext(ctx context.Context) (CookieJar, bool) {
	j, ok := ctx.Value(cookiesKey).(CookieJar)
	return j, ok
}

// Middleware resolves the session id cookie (issuing a new id when missing
// or unreadable) and attaches the session Store and CookieJar to the
// request context.
func Middleware(sessions *Sessions, codec *securecookie.SecureCookie, cfg Config, log *slog.Logger) func(http.Handler) http.Handler {
	opts := CookieOptions{Path: cfg.CookiePath, Secure: cfg.CookieSecure, SameSite: http.SameSiteLaxMode}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jar := NewSecureCookieJar(r, w, codec, opts)

			id, ok := jar.Get(cfg.CookieName)
			if !ok || !ids.Valid(id) {
				fresh, err := ids.NewULID(time.Now().UTC())
				if err != nil {
					log.Error("session.id.fail", "err", err)
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
				if err := jar.Set(cfg.CookieName, fresh, 0); err != nil {
					log.Error("session.cookie.fail", "err", err)
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
				id = fresh
			}

			ctx := WithStore(r.Context(), sessions.Open(id))
			ctx = WithCookies(ctx, jar)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
