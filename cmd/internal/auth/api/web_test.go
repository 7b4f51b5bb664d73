package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIssueCSRF(t *testing.T) {
	h := &Handler{cfg: DefaultConfig()}

	rr := httptest.NewRecorder()
	csrf, err := h.issueCSRF(rr, 0)
	if err != nil {
		t.Fatalf("issueCSRF: %v", err)
	}
	if csrf == "" {
		t.Fatalf("expected csrf token")
	}

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "warden_csrf" || c.Value != csrf || c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected csrf cookie: %+v", c)
	}
}

func TestCSRFDoubleSubmitValid(t *testing.T) {
	h := &Handler{cfg: DefaultConfig()}

	tests := []struct {
		name   string
		cookie string
		header string
		want   bool
	}{
		{"match", "abc123", "abc123", true},
		{"mismatch", "abc123", "abc124", false},
		{"missing header", "abc123", "", false},
		{"missing cookie", "", "abc123", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/auth/tokens", nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: "warden_csrf", Value: tt.cookie})
			}
			if tt.header != "" {
				r.Header.Set("X-CSRF-Token", tt.header)
			}
			if got := h.csrfDoubleSubmitValid(r); got != tt.want {
				t.Fatalf("csrfDoubleSubmitValid = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClearCSRF(t *testing.T) {
	h := &Handler{cfg: DefaultConfig()}
	rr := httptest.NewRecorder()
	h.clearCSRF(rr)
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected expired csrf cookie, got %+v", cookies)
	}
}
