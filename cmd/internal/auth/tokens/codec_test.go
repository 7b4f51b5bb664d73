package tokens

import (
	"strings"
	"testing"
	"time"

	"warden/cmd/security/token"
)

func TestCodec_CreateAndVerify(t *testing.T) {
	for _, d := range []token.Digester{token.NewDigester(nil), token.NewDigester([]byte("0123456789abcdef0123456789abcdef"))} {
		c := NewCodec(WithDigester(d), WithClock(manualClock()))

		tok, err := c.Create("u1", "web", KindRememberMe, time.Hour, 0)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if len(tok.Series) != 20 {
			t.Fatalf("expected 20-char series, got %q", tok.Series)
		}
		if strings.ContainsAny(tok.Series+tok.Value, ".+/=") {
			t.Fatalf("series/value must be url safe without dots: %q %q", tok.Series, tok.Value)
		}
		if tok.Value == "" || tok.Hash == tok.Value {
			t.Fatalf("value must be populated and differ from hash")
		}
		if !c.Verify(tok.Value, tok.Hash) {
			t.Fatalf("expected true value to verify")
		}
		for _, wrong := range []string{"", tok.Value + "x", tok.Value[1:], strings.ToUpper(tok.Value)} {
			if wrong != tok.Value && c.Verify(wrong, tok.Hash) {
				t.Fatalf("candidate %q must not verify", wrong)
			}
		}
		if want := epoch.Add(time.Hour); tok.ExpiresAt == nil || !tok.ExpiresAt.Equal(want) {
			t.Fatalf("expected expiry %v, got %v", want, tok.ExpiresAt)
		}
	}
}

func TestCodec_CreateUniqueAndSized(t *testing.T) {
	c := NewCodec()
	a, _ := c.Create("u1", "web", KindOpaque, 0, 0)
	b, _ := c.Create("u1", "web", KindOpaque, 0, 16)
	if a.Series == b.Series || a.Value == b.Value {
		t.Fatalf("expected independent random material")
	}
	if a.ExpiresAt != nil {
		t.Fatalf("expiresIn 0 must not expire")
	}
	// base64url without padding: 40 bytes -> 54 chars, 16 bytes -> 22 chars.
	if len(a.Value) != 54 || len(b.Value) != 22 {
		t.Fatalf("unexpected value lengths %d %d", len(a.Value), len(b.Value))
	}
	if _, err := c.Create("", "web", KindOpaque, 0, 0); err == nil {
		t.Fatalf("expected error for missing user id")
	}
}

func TestCodec_IsExpired(t *testing.T) {
	clock := manualClock()
	c := NewCodec(WithClock(clock))

	tok, _ := c.Create("u1", "api", KindOpaque, time.Minute, 0)
	if c.IsExpired(tok) || !c.Check(tok, tok.Value) {
		t.Fatalf("fresh token must be valid")
	}
	clock.Advance(time.Minute)
	if c.IsExpired(tok) {
		t.Fatalf("token is valid up to and including its expiry instant")
	}
	clock.Advance(time.Second)
	if !c.IsExpired(tok) || c.Check(tok, tok.Value) {
		t.Fatalf("token must be expired")
	}

	never, _ := c.Create("u1", "api", KindOpaque, 0, 0)
	clock.Advance(100 * 365 * 24 * time.Hour)
	if c.IsExpired(never) {
		t.Fatalf("non-expiring token expired")
	}
}

func TestParseCredential(t *testing.T) {
	s, v, err := ParseCredential("abc.def.ghi")
	if err != nil || s != "abc" || v != "def.ghi" {
		t.Fatalf("got %q %q %v", s, v, err)
	}
	for _, bad := range []string{"", "abc", ".abc", "abc.", "   "} {
		if _, _, err := ParseCredential(bad); err != ErrMalformedCredential {
			t.Fatalf("ParseCredential(%q): expected ErrMalformedCredential, got %v", bad, err)
		}
	}
}

func TestToken_Credential(t *testing.T) {
	tok := &Token{Series: "s", Value: "v"}
	if tok.Credential() != "s.v" {
		t.Fatalf("got %q", tok.Credential())
	}
	tok.Value = ""
	if tok.Credential() != "" {
		t.Fatalf("credential must be empty without a value")
	}
}

func TestToken_LogValueHidesSecrets(t *testing.T) {
	tok := &Token{Series: "s", Value: "super-secret", Hash: "h", Guard: "web"}
	if strings.Contains(tok.LogValue().String(), "super-secret") {
		t.Fatalf("log value leaked the secret")
	}
}
