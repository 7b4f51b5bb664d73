package auth

import "errors"

var (
	// ErrUnknownGuard is returned when a guard name has no factory.
	ErrUnknownGuard = errors.New("auth: unknown guard")

	// ErrConfig is returned by NewManager for an unusable guard mapping.
	ErrConfig = errors.New("auth: invalid guard configuration")
)
