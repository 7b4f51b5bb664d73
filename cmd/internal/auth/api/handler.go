package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"warden/cmd/identity"
	"warden/cmd/internal/auth"
	"warden/cmd/internal/auth/access"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/guard"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/auth/tokens"
)

// Handler exposes the guards over HTTP. It expects auth.Manager.Middleware
// (and session.Middleware for the session guard) to run first.
type Handler struct {
	log *slog.Logger
	cfg Config

	throttle LoginThrottle
	revokers []tokens.RelationalProvider
	now      func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithLoginThrottle enables login throttling.
func WithLoginThrottle(t LoginThrottle) HandlerOption {
	return func(h *Handler) {
		if t != nil {
			h.throttle = t
		}
	}
}

// WithRevokers sets the token stores emptied by /auth/logout_all.
func WithRevokers(p ...tokens.RelationalProvider) HandlerOption {
	return func(h *Handler) { h.revokers = append(h.revokers, p...) }
}

func NewHandler(log *slog.Logger, cfg Config, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{log: log, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register wires auth routes onto r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/logout", h.handleLogout)
	r.Post("/auth/logout_all", h.handleLogoutAll)
	r.Post("/auth/tokens", h.handleTokenCreate)
	r.Delete("/auth/tokens/current", h.handleTokenRevokeCurrent)
	r.Get("/me", h.handleMe)
}

// RequestMeta attributes audit events of the request to the client.
func (h *Handler) RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithRequestMeta(r.Context(), clientIP(r, h.cfg.TrustProxy), r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	a, sg, ok := h.sessionGuard(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	uid := strings.TrimSpace(req.UID)
	if uid == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "uid and password are required")
		return
	}

	ctx := r.Context()
	if h.throttle != nil {
		blocked, retryAfter, err := h.throttle.Check(ctx, clientIP(r, h.cfg.TrustProxy), h.now())
		if err != nil {
			h.log.Error("auth.login.throttle.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
			return
		}
		if blocked {
			writeRateLimited(w, retryAfter)
			return
		}
	}

	user, err := sg.Attempt(ctx, uid, req.Password, req.RememberMe)
	if err != nil {
		if errors.Is(err, session.ErrRememberMeDisabled) {
			writeError(w, http.StatusBadRequest, "remember_me_disabled", "remember me is not available")
			return
		}
		h.writeAuthError(w, a, []string{sg.Name()}, err)
		return
	}

	var csrfTTL time.Duration
	if req.RememberMe {
		csrfTTL = sg.RememberMeTTL()
	}
	csrf, err := h.issueCSRF(w, csrfTTL)
	if err != nil {
		h.log.Error("auth.login.csrf.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("auth.login.success", "user_id", user.ID(), "guard", sg.Name(), "remember_me", req.RememberMe)
	writeJSON(w, http.StatusOK, loginResponse{User: toUserResponse(user), CSRFToken: csrf})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	_, sg, ok := h.sessionGuard(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	authed, err := sg.Check(ctx)
	if err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if authed && !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "csrf_invalid", "csrf verification failed")
		return
	}
	if err := sg.Logout(ctx); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	h.clearCSRF(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	_, sg, user, ok := h.requireSessionUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var revoked int64
	for _, p := range h.revokers {
		n, err := p.DeleteAllForUser(ctx, user.ID())
		if err != nil {
			h.log.Error("auth.logout_all.fail", "err", err, "user_id", user.ID())
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		revoked += n
	}
	if err := sg.Logout(ctx); err != nil {
		h.log.Error("auth.logout_all.fail", "err", err, "user_id", user.ID())
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if hd, ok := session.StoreFromContext(ctx); ok {
		if hd, ok := hd.(*session.Handle); ok {
			if err := hd.Destroy(ctx); err != nil {
				h.log.Error("auth.logout_all.fail", "err", err, "user_id", user.ID())
				writeError(w, http.StatusInternalServerError, "server_error", "internal error")
				return
			}
		}
	}
	h.clearCSRF(w)

	h.log.Info("auth.logout_all", "user_id", user.ID(), "revoked", revoked)
	writeJSON(w, http.StatusOK, logoutAllResponse{Revoked: revoked})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	a, ok := h.authenticator(w, r)
	if !ok {
		return
	}

	user, err := a.AuthenticateUsing(r.Context(), h.cfg.MeGuards, auth.WithLoginRoute(h.cfg.LoginRoute))
	if err != nil {
		h.writeAuthError(w, a, h.cfg.MeGuards, err)
		return
	}

	resp := meResponse{User: toUserResponse(user), Guard: a.Via().Name()}
	if sg, ok := a.Via().(*session.Guard); ok && sg.ViaRemember() {
		// A recalled browser has lost its session cookies, the CSRF one included.
		csrf, err := h.issueCSRF(w, sg.RememberMeTTL())
		if err != nil {
			h.log.Error("auth.me.csrf.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		resp.ViaRemember = true
		resp.CSRFToken = csrf
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTokenCreate(w http.ResponseWriter, r *http.Request) {
	a, _, user, ok := h.requireSessionUser(w, r)
	if !ok {
		return
	}
	ag, ok := h.accessGuard(w, a)
	if !ok {
		return
	}

	var req tokenCreateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	expiry := strings.TrimSpace(req.ExpiresIn)
	if expiry == "" {
		expiry = h.cfg.DefaultTokenExpiry
	}
	expiresIn, err := tokens.ParseExpiry(expiry)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_expiry", "expires_in is not a valid duration")
		return
	}

	tok, err := ag.CreateToken(r.Context(), user, req.Name, expiresIn)
	if err != nil {
		h.log.Error("auth.tokens.create.fail", "err", err, "user_id", user.ID())
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, tokenCreateResponse{
		Type:      "bearer",
		Token:     tok.Credential(),
		Name:      tok.Meta[access.MetaName],
		ExpiresAt: tok.ExpiresAt,
	})
}

func (h *Handler) handleTokenRevokeCurrent(w http.ResponseWriter, r *http.Request) {
	a, ok := h.authenticator(w, r)
	if !ok {
		return
	}
	ag, ok := h.accessGuard(w, a)
	if !ok {
		return
	}
	ctx := r.Context()

	if _, err := ag.Authenticate(ctx); err != nil {
		h.writeAuthError(w, a, []string{ag.Name()}, err)
		return
	}
	if err := ag.InvalidateToken(ctx); err != nil {
		h.writeAuthError(w, a, []string{ag.Name()}, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- guard plumbing ----

func (h *Handler) authenticator(w http.ResponseWriter, r *http.Request) (*auth.Authenticator, bool) {
	a, ok := auth.FromContext(r.Context())
	if !ok {
		h.log.Error("auth.api.no_authenticator", "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return nil, false
	}
	return a, true
}

func (h *Handler) sessionGuard(w http.ResponseWriter, r *http.Request) (*auth.Authenticator, *session.Guard, bool) {
	a, ok := h.authenticator(w, r)
	if !ok {
		return nil, nil, false
	}
	g, err := a.Use(h.cfg.WebGuard)
	if err == nil {
		if sg, ok := g.(*session.Guard); ok {
			return a, sg, true
		}
		err = fmt.Errorf("guard %q is a %s guard", h.cfg.WebGuard, g.Driver())
	}
	h.log.Error("auth.api.session_guard.fail", "err", err)
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	return nil, nil, false
}

func (h *Handler) accessGuard(w http.ResponseWriter, a *auth.Authenticator) (*access.Guard, bool) {
	g, err := a.Use(h.cfg.TokenGuard)
	if err == nil {
		if ag, ok := g.(*access.Guard); ok {
			return ag, true
		}
		err = fmt.Errorf("guard %q is a %s guard", h.cfg.TokenGuard, g.Driver())
	}
	h.log.Error("auth.api.access_guard.fail", "err", err)
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	return nil, false
}

// requireSessionUser authenticates through the session guard and enforces
// the CSRF double submit.
func (h *Handler) requireSessionUser(w http.ResponseWriter, r *http.Request) (*auth.Authenticator, *session.Guard, identity.GuardUser, bool) {
	a, sg, ok := h.sessionGuard(w, r)
	if !ok {
		return nil, nil, nil, false
	}
	user, err := sg.Authenticate(r.Context())
	if err != nil {
		if guard.IsAuthFailure(err) {
			err = &guard.UnauthorizedError{Guards: []string{sg.Name()}}
		}
		h.writeAuthError(w, a, []string{sg.Name()}, err)
		return nil, nil, nil, false
	}
	if !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "csrf_invalid", "csrf verification failed")
		return nil, nil, nil, false
	}
	return a, sg, user, true
}

func (h *Handler) writeAuthError(w http.ResponseWriter, a *auth.Authenticator, names []string, err error) {
	var ue *guard.UnauthorizedError
	switch {
	case errors.As(err, &ue):
		for _, c := range a.Challenges(names) {
			w.Header().Add("WWW-Authenticate", c)
		}
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: apiError{
			Code:       ue.Code(),
			Message:    "unauthorized access",
			RedirectTo: ue.RedirectTo,
		}})
	case guard.IsInvalidCredentials(err):
		writeError(w, http.StatusUnauthorized, guard.CodeInvalidCredentials, "invalid credentials")
	default:
		h.log.Error("auth.api.fail", "err", err, "guards", names)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
