package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrConflict     = errors.New("conflict")

	// ErrInvalidUserObject means a provider was handed a record it cannot wrap.
	// It is an integration bug, never an authentication outcome.
	ErrInvalidUserObject = errors.New("invalid_user_object")
)
