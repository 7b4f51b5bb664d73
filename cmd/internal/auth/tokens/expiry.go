package tokens

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var expiryUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
	"y": 365 * 24 * time.Hour,
}

// ParseExpiry turns an expiry string into a duration.
//
// Accepted forms: "30m", "2d", "1w", "5y", any time.ParseDuration string
// ("1h30m"), or a bare number of seconds. "", "0", "never" and "false"
// mean no expiry and yield 0.
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "0", "never", "false":
		return 0, nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
		}
		return time.Duration(n) * time.Second, nil
	}

	unit := s[len(s)-1:]
	if mult, ok := expiryUnits[unit]; ok {
		if n, err := strconv.ParseInt(s[:len(s)-1], 10, 64); err == nil {
			if n < 0 {
				return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
			}
			return time.Duration(n) * mult, nil
		}
	}

	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
	}
	return d, nil
}
