package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/curation-tools/corpus-platform/pkg/metrics"
)

// Listener receives one envelope per dispatch. Listeners are invoked
// synchronously in registration order; a listener that needs to do network
// I/O must hand the work to its own goroutine and own the resulting errors.
type Listener func(ctx context.Context, env Envelope)

type registration struct {
	name string
	fn   Listener
}

// Bus is the in-process domain event bus. Exactly one Bus exists per
// process; it is constructed in main and passed to the mutation service and
// the sink handlers. Subscription happens during startup only, so dispatch
// reads the registry without locking.
type Bus struct {
	builder   *Builder
	listeners map[Kind][]registration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewBus creates a Bus that stamps envelopes with the given builder.
func NewBus(builder *Builder, m *metrics.Metrics) *Bus {
	return &Bus{
		builder:   builder,
		listeners: make(map[Kind][]registration),
		metrics:   m,
		logger:    slog.Default().With("component", "event-bus"),
	}
}

// Subscribe registers a named listener for one event kind. Multiple
// listeners per kind are allowed and fire in registration order. An unknown
// kind is a programmer error and fails fast.
func (b *Bus) Subscribe(kind Kind, name string, fn Listener) error {
	if !kind.Valid() {
		return fmt.Errorf("subscribing %s: unknown event kind %q", name, kind)
	}
	if fn == nil {
		return fmt.Errorf("subscribing %s to %s: nil listener", name, kind)
	}
	b.listeners[kind] = append(b.listeners[kind], registration{name: name, fn: fn})
	b.logger.Debug("listener subscribed", "listener", name, "kind", kind)
	return nil
}

// Publish builds one envelope and hands it to every listener registered for
// the kind, in registration order. Listener behaviour never reaches the
// caller: a panicking listener is recovered, reported, and dispatch
// continues with the next one. With no listeners registered the call is a
// no-op aside from envelope construction.
func (b *Bus) Publish(ctx context.Context, kind Kind, payload Payload) {
	env := b.builder.Build(kind, payload)
	b.metrics.EventsPublishedTotal.WithLabelValues(string(kind)).Inc()

	for _, reg := range b.listeners[kind] {
		b.dispatch(ctx, reg, env)
	}
}

// dispatch invokes a single listener inside the bus's failure boundary.
func (b *Bus) dispatch(ctx context.Context, reg registration, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.ListenerPanicsTotal.WithLabelValues(reg.name).Inc()
			b.logger.Error("listener panicked during dispatch",
				"listener", reg.name,
				"kind", env.Kind,
				"event_id", env.EventID,
				"panic", r,
			)
		}
	}()
	reg.fn(ctx, env)
}
