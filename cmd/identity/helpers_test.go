package identity

import "warden/cmd/security/password"

func testHasher() password.Hasher {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Policy.MinLength = 4
	return cfg
}

func strp(s string) *string { return &s }
