package identity

import "strings"

// NormalizeUsername performs case-insensitive canonicalization.
// Note: for now we only trim + lower-case. Additional rules (unicode confusables)
// can be added later behind a versioned policy.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeUID applies the normalization of the given UID column.
func normalizeUID(column, uid string) string {
	switch column {
	case UIDEmail:
		return NormalizeEmail(uid)
	case UIDUsername:
		return NormalizeUsername(uid)
	default:
		return strings.TrimSpace(uid)
	}
}

func validUIDs(cols []string) error {
	if len(cols) == 0 {
		return OpError{Op: "identity.UIDs", Kind: ErrInvalidInput, Msg: "at least one uid column is required"}
	}
	for _, c := range cols {
		if c != UIDEmail && c != UIDUsername {
			return OpError{Op: "identity.UIDs", Kind: ErrInvalidInput, Msg: "unknown uid column " + c}
		}
	}
	return nil
}
