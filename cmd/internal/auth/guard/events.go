package guard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"warden/cmd/identity"
)

// Event families, one per guard driver.
const (
	FamilySession      = "session_auth"
	FamilyAccessTokens = "access_tokens_auth"
	FamilyBasic        = "basic_auth"
)

// Event suffixes.
const (
	AuthenticationAttempted = "authentication_attempted"
	CredentialsVerified     = "credentials_verified"
	AuthenticationSucceeded = "authentication_succeeded"
	AuthenticationFailed    = "authentication_failed"
	LoginAttempted          = "login_attempted"
	LoginSucceeded          = "login_succeeded"
	LoginFailed             = "login_failed"
	LoggedOut               = "logged_out"
)

// EventName joins a family and a suffix: "basic_auth:authentication_failed".
func EventName(family, suffix string) string { return family + ":" + suffix }

// Event is one observation emitted by a guard.
type Event struct {
	Name       string
	Guard      string
	User       identity.GuardUser
	Err        error
	RememberMe bool
	Time       time.Time
}

// UserID is "" when the event carries no user.
func (e Event) UserID() string {
	if e.User == nil {
		return ""
	}
	return e.User.ID()
}

// Emitter receives guard events. Emit must return quickly; slow sinks
// should buffer and drop.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, e Event)

func (f EmitterFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// Emit delivers e to em. A nil emitter is a no-op and a panicking sink is
// contained, so emission can never break authentication.
func Emit(ctx context.Context, em Emitter, e Event) {
	if em == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	defer func() { _ = recover() }()
	em.Emit(ctx, e)
}

// Fanout delivers every event to each emitter in order. A panicking member
// does not stop the others.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, e Event) {
	for _, em := range f {
		Emit(ctx, em, e)
	}
}

// SlogEmitter logs events at debug level, failures at info.
type SlogEmitter struct {
	Log *slog.Logger
}

func (s SlogEmitter) Emit(ctx context.Context, e Event) {
	if s.Log == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("event", e.Name),
		slog.String("guard", e.Guard),
	}
	if id := e.UserID(); id != "" {
		attrs = append(attrs, slog.String("user_id", id))
	}
	if e.RememberMe {
		attrs = append(attrs, slog.Bool("remember_me", true))
	}
	level := slog.LevelDebug
	if e.Err != nil {
		level = slog.LevelInfo
		attrs = append(attrs, slog.String("err", e.Err.Error()))
	}
	s.Log.LogAttrs(ctx, level, "auth.event", attrs...)
}

// Recorder keeps events in memory. It is meant for tests and debugging.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
