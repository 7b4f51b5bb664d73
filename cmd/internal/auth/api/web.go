package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

// issueCSRF sets the double-submit cookie that session-authenticated
// state-changing requests must echo in the CSRF header. A positive ttl
// makes it outlive the browser session, matching the remember-me cookie.
func (h *Handler) issueCSRF(w http.ResponseWriter, ttl time.Duration) (string, error) {
	csrf, err := newOpaqueWebToken(32)
	if err != nil {
		return "", err
	}
	c := &http.Cookie{
		Name:     h.cfg.CSRFCookieName,
		Value:    csrf,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		HttpOnly: false,
		Secure:   h.cfg.CookieSecure,
		SameSite: parseSameSite(h.cfg.CookieSameSite),
	}
	if ttl > 0 {
		c.MaxAge = int(ttl / time.Second)
		c.Expires = h.now().Add(ttl).UTC()
	}
	http.SetCookie(w, c)
	return csrf, nil
}

func (h *Handler) clearCSRF(w http.ResponseWriter) {
	if strings.TrimSpace(h.cfg.CSRFCookieName) == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CSRFCookieName,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		Secure:   h.cfg.CookieSecure,
		SameSite: parseSameSite(h.cfg.CookieSameSite),
	})
}

func (h *Handler) csrfDoubleSubmitValid(r *http.Request) bool {
	if r == nil {
		return false
	}
	c, err := r.Cookie(h.cfg.CSRFCookieName)
	if err != nil {
		return false
	}
	cv := strings.TrimSpace(c.Value)
	hv := strings.TrimSpace(r.Header.Get(h.cfg.CSRFHeaderName))
	if cv == "" || hv == "" {
		return false
	}
	return secureStringEqual(cv, hv)
}

func newOpaqueWebToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func secureStringEqual(a, b string) bool {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
