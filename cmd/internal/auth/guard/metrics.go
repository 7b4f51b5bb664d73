package guard

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusEmitter counts guard events.
type PrometheusEmitter struct {
	events *prometheus.CounterVec
}

// NewPrometheusEmitter registers warden_auth_events_total on reg. Registering
// twice on the same registry reuses the existing collector.
func NewPrometheusEmitter(reg prometheus.Registerer) (*PrometheusEmitter, error) {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_auth_events_total",
			Help: "Authentication events by guard, family and event",
		},
		[]string{"guard", "family", "event"},
	)
	if err := reg.Register(events); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		events = existing
	}
	return &PrometheusEmitter{events: events}, nil
}

func (p *PrometheusEmitter) Emit(_ context.Context, e Event) {
	family, suffix, ok := strings.Cut(e.Name, ":")
	if !ok {
		family, suffix = "unknown", e.Name
	}
	p.events.WithLabelValues(e.Guard, family, suffix).Inc()
}
