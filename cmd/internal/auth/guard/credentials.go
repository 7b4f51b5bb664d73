package guard

import (
	"context"
	"fmt"

	"warden/cmd/identity"
	"warden/cmd/security/password"
)

// dummyPassword only exists to produce a digest with realistic cost.
const dummyPassword = "dummy-password-for-timing-only"

// CredentialVerifier resolves a uid/password pair to a user.
//
// When the uid is unknown it still runs one password verification against a
// dummy digest so response time does not reveal whether the account exists.
type CredentialVerifier struct {
	users  identity.UserProvider
	hasher password.Hasher
	dummy  string
}

func NewCredentialVerifier(users identity.UserProvider, hasher password.Hasher) (*CredentialVerifier, error) {
	if users == nil {
		return nil, fmt.Errorf("guard: nil user provider")
	}
	v := &CredentialVerifier{users: users, hasher: hasher}
	if hasher != nil {
		if digest, err := hasher.Hash(dummyPassword); err == nil {
			v.dummy = digest
		}
	}
	return v, nil
}

// Verify returns the matching user, an ErrInvalidCredentials failure
// scoped to guardName, or a provider error unchanged.
func (v *CredentialVerifier) Verify(ctx context.Context, guardName, uid, plain string) (identity.GuardUser, error) {
	user, err := v.users.FindByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if user == nil {
		if v.dummy != "" {
			_, _ = v.hasher.Verify(plain, v.dummy)
		}
		return nil, InvalidCredentials(guardName, "unknown uid")
	}

	ok, err := user.VerifyPassword(plain)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, InvalidCredentials(guardName, "password mismatch")
	}
	return user, nil
}
