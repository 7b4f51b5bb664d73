package api

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"warden/cmd/internal/auth/guard"
)

// LoginThrottle decides whether a login attempt from ip may proceed.
type LoginThrottle interface {
	Check(ctx context.Context, ip net.IP, now time.Time) (blocked bool, retryAfter time.Duration, err error)
}

// throttledAction is the audit action counted against a client address.
// Only password attempts count; anonymous requests that find no session do not.
var throttledAction = guard.EventName(guard.FamilySession, guard.LoginFailed)

type lockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// AuditLogThrottle counts recent failed session logins per client address
// in the audit log.
type AuditLogThrottle struct {
	pool   *pgxpool.Pool
	schema string
	action string
	guard  string

	ipMax    int
	ipWindow time.Duration
	tiers    []lockoutTier
}

var _ LoginThrottle = (*AuditLogThrottle)(nil)

// NewAuditLogThrottle throttles failures of the session guard named
// webGuard recorded in "<schema>.audit_log".
func NewAuditLogThrottle(pool *pgxpool.Pool, schema, webGuard string, cfg Config) *AuditLogThrottle {
	if schema == "" {
		schema = "warden"
	}
	return &AuditLogThrottle{
		pool:     pool,
		schema:   schema,
		action:   throttledAction,
		guard:    webGuard,
		ipMax:    cfg.LoginIPMax,
		ipWindow: cfg.LoginIPWindow,
		tiers:    cfg.lockoutTiers(),
	}
}

func (t *AuditLogThrottle) lookback() time.Duration {
	d := t.ipWindow
	for _, tier := range t.tiers {
		if tier.Duration > d {
			d = tier.Duration
		}
	}
	return d
}

func (t *AuditLogThrottle) Check(ctx context.Context, ip net.IP, now time.Time) (bool, time.Duration, error) {
	if ip == nil || t.pool == nil {
		return false, 0, nil
	}
	failures, err := t.failuresSince(ctx, ip, now.Add(-t.lookback()))
	if err != nil {
		return false, 0, err
	}
	if blocked, retry := evaluateWindowThrottle(now, failures, t.ipMax, t.ipWindow); blocked {
		return true, retry, nil
	}
	blocked, retry := evaluateProgressiveLockout(now, failures, t.tiers)
	return blocked, retry, nil
}

func (t *AuditLogThrottle) failuresSince(ctx context.Context, ip net.IP, since time.Time) ([]time.Time, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT created_at
		FROM `+pgx.Identifier{t.schema, "audit_log"}.Sanitize()+`
		WHERE action = $1
		  AND guard = $2
		  AND ip = $3
		  AND created_at >= $4
		ORDER BY created_at DESC
	`, t.action, t.guard, ip.String(), since)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}

// evaluateWindowThrottle blocks once max failures fall inside window. The
// block lasts until the oldest of them leaves the window.
func evaluateWindowThrottle(now time.Time, failures []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	var in []time.Time
	for _, f := range failures {
		if f.After(cut) {
			in = append(in, f)
		}
	}
	if len(in) < max {
		return false, 0
	}
	sort.Slice(in, func(i, j int) bool { return in[i].After(in[j]) })
	// Dropping the max-th most recent failure unblocks.
	return true, in[max-1].Add(window).Sub(now)
}

// evaluateProgressiveLockout applies the first tier whose threshold is met.
// A lockout lasts the tier duration from the most recent failure.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []lockoutTier) (bool, time.Duration) {
	if len(failures) == 0 {
		return false, 0
	}
	latest := failures[0]
	for _, f := range failures[1:] {
		if f.After(latest) {
			latest = f
		}
	}
	for _, tier := range tiers {
		if tier.Threshold <= 0 || len(failures) < tier.Threshold {
			continue
		}
		until := latest.Add(tier.Duration)
		if until.After(now) {
			return true, until.Sub(now)
		}
	}
	return false, 0
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
