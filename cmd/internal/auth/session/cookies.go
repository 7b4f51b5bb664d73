package session

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// CookieJar reads and writes the cookies of one request.
//
// A value written with Set or removed with Clear is visible to later Gets
// in the same request.
type CookieJar interface {
	Get(name string) (string, bool)
	Set(name, value string, maxAge time.Duration) error
	Clear(name string)
}

// CookieOptions are the attributes applied to every written cookie.
type CookieOptions struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// SecureCookieJar signs and encrypts cookie values with securecookie.
//
// The codec's MaxAge bounds how old a decodable cookie may be, so it must
// be at least the longest maxAge passed to Set.
type SecureCookieJar struct {
	r       *http.Request
	w       http.ResponseWriter
	codec   *securecookie.SecureCookie
	opts    CookieOptions
	pending map[string]*string
}

var _ CookieJar = (*SecureCookieJar)(nil)

func NewSecureCookieJar(r *http.Request, w http.ResponseWriter, codec *securecookie.SecureCookie, opts CookieOptions) *SecureCookieJar {
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	return &SecureCookieJar{r: r, w: w, codec: codec, opts: opts, pending: make(map[string]*string)}
}

// Get returns the decoded value. Tampered or expired cookies read as absent.
func (j *SecureCookieJar) Get(name string) (string, bool) {
	if v, ok := j.pending[name]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	c, err := j.r.Cookie(name)
	if err != nil {
		return "", false
	}
	var v string
	if err := j.codec.Decode(name, c.Value, &v); err != nil {
		return "", false
	}
	return v, true
}

// Set writes an encoded cookie. maxAge <= 0 makes it a browser-session cookie.
func (j *SecureCookieJar) Set(name, value string, maxAge time.Duration) error {
	encoded, err := j.codec.Encode(name, value)
	if err != nil {
		return err
	}
	c := j.cookie(name, encoded)
	if maxAge > 0 {
		c.MaxAge = int(maxAge / time.Second)
		c.Expires = time.Now().Add(maxAge).UTC()
	}
	http.SetCookie(j.w, c)
	j.pending[name] = &value
	return nil
}

func (j *SecureCookieJar) Clear(name string) {
	c := j.cookie(name, "")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(j.w, c)
	j.pending[name] = nil
}

func (j *SecureCookieJar) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     j.opts.Path,
		Domain:   j.opts.Domain,
		Secure:   j.opts.Secure,
		HttpOnly: true,
		SameSite: j.opts.SameSite,
	}
}

// MemoryJar is a CookieJar without HTTP, for tests and non-browser callers.
type MemoryJar struct {
	values  map[string]string
	maxAges map[string]time.Duration
}

var _ CookieJar = (*MemoryJar)(nil)

func NewMemoryJar(initial map[string]string) *MemoryJar {
	j := &MemoryJar{values: make(map[string]string), maxAges: make(map[string]time.Duration)}
	for k, v := range initial {
		j.values[k] = v
	}
	return j
}

func (j *MemoryJar) Get(name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok
}

func (j *MemoryJar) Set(name, value string, maxAge time.Duration) error {
	j.values[name] = value
	j.maxAges[name] = maxAge
	return nil
}

func (j *MemoryJar) Clear(name string) {
	delete(j.values, name)
	delete(j.maxAges, name)
}

// MaxAge returns the max age of the last Set for name.
func (j *MemoryJar) MaxAge(name string) time.Duration { return j.maxAges[name] }
