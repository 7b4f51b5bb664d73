package tokens

import "context"

// Provider persists tokens of one Kind.
//
// TokenBySeries returns (nil, nil) for missing and expired tokens so callers
// cannot tell the two apart. DeleteToken is idempotent.
type Provider interface {
	CreateToken(ctx context.Context, t *Token) error
	TokenBySeries(ctx context.Context, series string) (*Token, error)
	DeleteToken(ctx context.Context, series string) error
}

// RelationalProvider is a Provider that can also revoke in bulk.
type RelationalProvider interface {
	Provider
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}

func validateForCreate(t *Token, kind Kind) error {
	switch {
	case t == nil:
		return ErrInvalidToken
	case t.Series == "" || t.Hash == "" || t.UserID == "" || t.Guard == "":
		return ErrInvalidToken
	case t.Kind != "" && t.Kind != kind:
		return ErrInvalidToken
	}
	return nil
}
