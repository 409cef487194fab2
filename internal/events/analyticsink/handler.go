package analyticsink

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/curation-tools/corpus-platform/internal/events"
	"github.com/curation-tools/corpus-platform/pkg/metrics"
)

const sinkName = "analytics"

// Tracker submits one derived (trigger, context) pair to the analytics
// pipeline. Implemented by pkg/analytics.Client.
type Tracker interface {
	Track(ctx context.Context, trigger string, entity any) error
}

// Handler is the analytics sink. It derives a context entity for each
// observed event and delivers it on its own goroutine; delivery failures are
// logged and counted, never propagated, never retried.
type Handler struct {
	tracker Tracker
	metrics *metrics.Metrics
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates the handler and subscribes it to the given kinds. Subscription
// errors are startup failures.
func New(bus *events.Bus, tracker Tracker, m *metrics.Metrics, kinds []events.Kind) (*Handler, error) {
	h := &Handler{
		tracker: tracker,
		metrics: m,
		logger:  slog.Default().With("component", "analytics-sink"),
	}
	for _, kind := range kinds {
		if err := bus.Subscribe(kind, sinkName, h.Handle); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Handle is the bus listener. It returns immediately; derivation and
// delivery run on a goroutine detached from the request context so the
// mutation's response is never delayed by collector round-trips.
func (h *Handler) Handle(ctx context.Context, env events.Envelope) {
	h.wg.Add(1)
	dctx := context.WithoutCancel(ctx)
	go func() {
		defer h.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				h.metrics.SinkDeliveriesTotal.WithLabelValues(sinkName, metrics.OutcomeBuildFailed).Inc()
				h.logger.Error("panic while handling event",
					"kind", env.Kind,
					"event_id", env.EventID,
					"panic", r,
				)
			}
		}()
		h.deliver(dctx, env)
	}()
}

func (h *Handler) deliver(ctx context.Context, env events.Envelope) {
	entity, err := deriveContext(env)
	if err != nil {
		h.metrics.SinkDeliveriesTotal.WithLabelValues(sinkName, metrics.OutcomeBuildFailed).Inc()
		h.logger.Error("failed to derive analytics context",
			"kind", env.Kind,
			"event_id", env.EventID,
			"payload", rawPayload(env),
			"error", err,
		)
		return
	}

	start := time.Now()
	err = h.tracker.Track(ctx, env.Kind.Trigger(), entity)
	h.metrics.SinkDeliveryDuration.WithLabelValues(sinkName).Observe(time.Since(start).Seconds())
	if err != nil {
		h.metrics.SinkDeliveriesTotal.WithLabelValues(sinkName, metrics.OutcomeDeliveryFailed).Inc()
		h.logger.Error("analytics delivery failed",
			"trigger", env.Kind.Trigger(),
			"event_id", env.EventID,
			"error", err,
		)
		return
	}
	h.metrics.SinkDeliveriesTotal.WithLabelValues(sinkName, metrics.OutcomeDelivered).Inc()
	h.logger.Debug("analytics event delivered", "trigger", env.Kind.Trigger(), "event_id", env.EventID)
}

// Close waits for in-flight deliveries to finish. Called during shutdown.
func (h *Handler) Close() {
	h.wg.Wait()
}

// rawPayload serialises the payload for failure logs.
func rawPayload(env events.Envelope) string {
	data, err := json.Marshal(env.Payload)
	if err != nil {
		return "<unserializable>"
	}
	return string(data)
}
