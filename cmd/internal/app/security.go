package app

import (
	"errors"

	"warden/cmd/security/token"
)

// ValidateSecurityConfig enforces the token hashing policy at startup and
// returns the digester the token codec must use.
//
// With WARDEN_REQUIRE_TOKEN_HMAC=true a missing or short key is fatal.
// Otherwise a present key still enables HMAC mode.
func ValidateSecurityConfig(cfg Config) (token.Digester, error) {
	d, err := token.DigesterFromEnv(cfg.RequireTokenHMAC)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Digester{}, errors.New("security policy: WARDEN_REQUIRE_TOKEN_HMAC=true but WARDEN_TOKEN_HMAC_KEY is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Digester{}, errors.New("security policy: WARDEN_TOKEN_HMAC_KEY is too short (min 32 bytes)")
	default:
		return token.Digester{}, err
	}

	if cfg.RequireTokenHMAC && !d.Keyed() {
		return token.Digester{}, errors.New("security policy: WARDEN_REQUIRE_TOKEN_HMAC=true but token digests are not HMAC")
	}
	return d, nil
}
