package password

import "strings"

// Hasher is the pluggable password-hash collaborator used by user providers
// and guards.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) (bool, error)
}

var (
	_ Hasher = Config{}
	_ Hasher = Scrypt{}
	_ Hasher = (*Multi)(nil)
)

// Multi hashes with a primary algorithm and verifies any digest whose PHC
// identifier it knows, so stored hashes can be migrated lazily.
type Multi struct {
	primary string
	byID    map[string]Hasher
}

// NewMulti builds a Multi. primary must be a key of hashers.
func NewMulti(primary string, hashers map[string]Hasher) (*Multi, error) {
	if _, ok := hashers[primary]; !ok {
		return nil, ErrUnsupportedHash
	}
	m := &Multi{primary: primary, byID: make(map[string]Hasher, len(hashers))}
	for id, h := range hashers {
		m.byID[id] = h
	}
	return m, nil
}

// Default is argon2id for new hashes and accepts scrypt digests.
func Default(cfg Config) *Multi {
	m, _ := NewMulti(ID, map[string]Hasher{
		ID:       cfg,
		ScryptID: DefaultScrypt(),
	})
	return m
}

func (m *Multi) Hash(plain string) (string, error) {
	return m.byID[m.primary].Hash(plain)
}

func (m *Multi) Verify(plain, digest string) (bool, error) {
	h, ok := m.byID[Identify(digest)]
	if !ok {
		return false, ErrUnsupportedHash
	}
	return h.Verify(plain, digest)
}

// NeedsRehash reports whether digest was produced by a non-primary algorithm.
func (m *Multi) NeedsRehash(digest string) bool {
	return Identify(digest) != m.primary
}

// Identify returns the PHC identifier of an encoded hash ("" if none).
func Identify(digest string) string {
	if !strings.HasPrefix(digest, "$") {
		return ""
	}
	rest := digest[1:]
	i := strings.IndexByte(rest, '$')
	if i <= 0 {
		return ""
	}
	return rest[:i]
}
