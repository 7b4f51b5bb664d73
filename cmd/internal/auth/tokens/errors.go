package tokens

import "errors"

var (
	ErrMalformedCredential = errors.New("tokens: malformed credential")
	ErrInvalidExpiry       = errors.New("tokens: invalid expiry")
	ErrDuplicateSeries     = errors.New("tokens: duplicate series")
	ErrInvalidToken        = errors.New("tokens: invalid token")
)
