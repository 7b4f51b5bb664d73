package audit

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thejerf/abtime"

	"warden/cmd/identity/ids"
	"warden/cmd/internal/auth/guard"
)

// DefaultBuffer is the queue size used when NewSink gets buffer <= 0.
const DefaultBuffer = 1024

// Record is one audit log row.
type Record struct {
	ID        string
	Action    string
	Guard     string
	UserID    *string
	IP        *string
	UserAgent *string
	Meta      map[string]string
	CreatedAt time.Time
}

// Writer stores records. Implementations must be safe to call from the
// sink goroutine only; no concurrent calls are made.
type Writer interface {
	Write(ctx context.Context, recs []Record) error
}

type requestMetaKey struct{}

type requestMeta struct {
	ip string
	ua string
}

// WithRequestMeta attaches the client address and user agent that events
// emitted under ctx are attributed to.
func WithRequestMeta(ctx context.Context, ip net.IP, userAgent string) context.Context {
	m := requestMeta{ua: strings.TrimSpace(userAgent)}
	if ip != nil {
		m.ip = ip.String()
	}
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// Sink is a guard.Emitter feeding a Writer asynchronously.
type Sink struct {
	w     Writer
	log   *slog.Logger
	clock abtime.AbstractTime
	batch int

	mu      sync.RWMutex
	closed  bool
	ch      chan Record
	done    chan struct{}
	dropped atomic.Uint64
}

var _ guard.Emitter = (*Sink)(nil)

func NewSink(w Writer, log *slog.Logger, buffer int) *Sink {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sink{
		w:     w,
		log:   log,
		clock: abtime.NewRealTime(),
		batch: 64,
		ch:    make(chan Record, buffer),
		done:  make(chan struct{}),
	}
}

// Dropped reports how many events were discarded because the queue was full
// or the sink was closed.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Emit queues e without blocking.
func (s *Sink) Emit(ctx context.Context, e guard.Event) {
	rec := s.record(ctx, e)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- rec:
	default:
		s.dropped.Add(1)
	}
}

func (s *Sink) record(ctx context.Context, e guard.Event) Record {
	at := e.Time
	if at.IsZero() {
		at = s.clock.Now()
	}
	id, err := ids.NewULID(at)
	if err != nil {
		id = ""
	}
	rec := Record{ID: id, Action: e.Name, Guard: e.Guard, CreatedAt: at.UTC()}
	if uid := e.UserID(); uid != "" {
		rec.UserID = &uid
	}
	if m, ok := ctx.Value(requestMetaKey{}).(requestMeta); ok {
		if m.ip != "" {
			ip := m.ip
			rec.IP = &ip
		}
		if m.ua != "" {
			ua := m.ua
			rec.UserAgent = &ua
		}
	}

	meta := map[string]string{}
	if e.RememberMe {
		meta["remember_me"] = "true"
	}
	if e.Err != nil {
		var ge *guard.Error
		if errors.As(e.Err, &ge) && ge.Msg != "" {
			meta["reason"] = ge.Msg
		} else {
			meta["reason"] = e.Err.Error()
		}
	}
	if len(meta) > 0 {
		rec.Meta = meta
	}
	return rec
}

// Run writes queued records until Close is called and the queue is
// drained. ctx bounds individual writes.
func (s *Sink) Run(ctx context.Context) {
	defer close(s.done)

	buf := make([]Record, 0, s.batch)
	for rec := range s.ch {
		buf = append(buf[:0], rec)
	fill:
		for len(buf) < s.batch {
			select {
			case more, ok := <-s.ch:
				if !ok {
					break fill
				}
				buf = append(buf, more)
			default:
				break fill
			}
		}
		s.flush(ctx, buf)
	}
}

func (s *Sink) flush(ctx context.Context, recs []Record) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.w.Write(wctx, recs); err != nil {
		s.log.Error("auth.audit.insert.fail", "err", err, "count", len(recs))
	}
}

// Close stops accepting events and waits for Run to drain the queue or for
// ctx to end.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
