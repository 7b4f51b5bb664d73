package guard

import (
	"errors"
	"fmt"
	"strings"
)

// Stable codes exposed to HTTP clients.
const (
	CodeInvalidCredentials = "E_INVALID_CREDENTIALS"
	CodeUnauthorizedAccess = "E_UNAUTHORIZED_ACCESS"
)

var (
	// ErrInvalidCredentials covers every "who are you" failure: unknown uid,
	// wrong password, malformed/unknown/expired token, vanished user.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorizedAccess is raised when an authenticated user was
	// required and none is available.
	ErrUnauthorizedAccess = errors.New("unauthorized access")
)

// Error is a guard-scoped failure. Msg is for logs only; callers must not
// show it to clients since it may tell which step failed.
type Error struct {
	Guard string
	Kind  error
	Msg   string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Guard, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Guard, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

// InvalidCredentials builds an ErrInvalidCredentials failure for guard.
func InvalidCredentials(guard, msg string) error {
	return &Error{Guard: guard, Kind: ErrInvalidCredentials, Msg: msg}
}

// UnauthorizedError reports that no guard could authenticate the request.
// It lists guard names only, never per-guard details.
type UnauthorizedError struct {
	Guards     []string
	RedirectTo string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%v: guards [%s]", ErrUnauthorizedAccess, strings.Join(e.Guards, ", "))
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorizedAccess }

func (e *UnauthorizedError) Code() string { return CodeUnauthorizedAccess }

// IsInvalidCredentials reports whether err represents ErrInvalidCredentials.
func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }

// IsUnauthorized reports whether err represents ErrUnauthorizedAccess.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorizedAccess) }

// IsAuthFailure reports whether err is an authentication outcome rather than
// an infrastructure or programming error.
func IsAuthFailure(err error) bool {
	return IsInvalidCredentials(err) || IsUnauthorized(err)
}
