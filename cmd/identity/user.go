package identity

import (
	"context"
	"time"
)

// User is warden's canonical security principal record.
type User struct {
	ID           string
	Username     *string
	UsernameNorm *string
	Email        *string
	EmailNorm    *string

	DisplayName *string

	// PasswordHash is the encoded digest from user_credentials. Empty means
	// the account cannot log in with a password.
	PasswordHash string `json:"-"`

	CreatedAt time.Time
}

// CreateUserInput describes a user registration request.
// At least one of Username or Email must be provided.
type CreateUserInput struct {
	Username    *string
	Email       *string
	DisplayName *string
	Password    string
	Now         time.Time
}

// CreateUserResult returns the created user.
type CreateUserResult struct {
	User User
}

// UserProvider resolves principals for guards.
//
// Lookups return (nil, nil) when nothing matches; a non-nil error always
// means the backing store failed and is propagated to the caller as is.
type UserProvider interface {
	FindByID(ctx context.Context, id string) (GuardUser, error)

	// FindByUID searches the configured UID columns in order and returns
	// the first match.
	FindByUID(ctx context.Context, uid string) (GuardUser, error)

	// CreateUserForGuard wraps a raw record already fetched by the caller.
	// It fails with ErrInvalidUserObject when raw has the wrong shape.
	CreateUserForGuard(raw any) (GuardUser, error)
}

// UID columns understood by the built-in providers.
const (
	UIDEmail    = "email"
	UIDUsername = "username"
)

// DefaultUIDs is the lookup order used when none is configured.
var DefaultUIDs = []string{UIDEmail, UIDUsername}
