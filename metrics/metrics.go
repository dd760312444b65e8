// Package metrics counts credential activity in prometheus.
package metrics

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	auth "github.com/neuronurture/go-auth"
)

// ActivityCounter is an auth.ActivitySink that counts events by type and
// outcome reason.
type ActivityCounter struct {
	events *prometheus.CounterVec
}

var _ auth.ActivitySink = (*ActivityCounter)(nil)

// NewActivityCounter creates the counter and registers it with reg. A nil
// registerer selects prometheus.DefaultRegisterer.
func NewActivityCounter(reg prometheus.Registerer) (*ActivityCounter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Subsystem: "activity",
		Name:      "events_total",
		Help:      "Total number of credential lifecycle events",
	}, []string{"event", "reason"})

	if err := reg.Register(events); err != nil {
		return nil, err
	}

	return &ActivityCounter{events: events}, nil
}

// Record implements auth.ActivitySink
func (a *ActivityCounter) Record(_ context.Context, event auth.ActivityEvent) error {
	reason, _ := event.Metadata["reason"].(string)
	a.events.WithLabelValues(label(string(event.EventType)), label(reason)).Inc()
	return nil
}

// Collector exposes the underlying vector
func (a *ActivityCounter) Collector() *prometheus.CounterVec {
	return a.events
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "none"
	}
	return v
}

// Fanout records an event in every sink, returning the first error
func Fanout(sinks ...auth.ActivitySink) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		var first error
		for _, sink := range sinks {
			if sink == nil {
				continue
			}
			if err := sink.Record(ctx, event); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
