package integrationsink

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/curation-tools/corpus-platform/internal/events"
	"github.com/curation-tools/corpus-platform/pkg/kafka"
	"github.com/curation-tools/corpus-platform/pkg/metrics"
)

const sinkName = "integration-bus"

// Publisher writes one outbound message to the integration bus. Implemented
// by pkg/kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Handler is the integration bus sink. One listener is registered per entry
// in the detail-type map; each delivery is one outbound message tagged with
// the fixed integration source and the kind's detail-type.
type Handler struct {
	publisher   Publisher
	source      string
	detailTypes map[events.Kind]string
	metrics     *metrics.Metrics
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// New creates the handler and subscribes it for every kind in detailTypes.
// A nil map selects DefaultDetailTypes. Subscription errors are startup
// failures.
func New(bus *events.Bus, publisher Publisher, m *metrics.Metrics, source string, detailTypes map[events.Kind]string) (*Handler, error) {
	if detailTypes == nil {
		detailTypes = DefaultDetailTypes()
	}
	h := &Handler{
		publisher:   publisher,
		source:      source,
		detailTypes: detailTypes,
		metrics:     m,
		logger:      slog.Default().With("component", "integration-sink"),
	}
	for kind := range detailTypes {
		if err := bus.Subscribe(kind, sinkName, h.Handle); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Handle is the bus listener. Building and publishing run on a goroutine
// detached from the request context; two events may be in flight to the bus
// at once and may complete out of order.
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
	detailType := h.detailTypes[env.Kind]
	detail, key, err := buildDetail(env)
	if err != nil {
		h.metrics.SinkDeliveriesTotal.WithLabelValues(sinkName, metrics.OutcomeBuildFailed).Inc()
		h.logger.Error("failed to build integration payload",
			"kind", env.Kind,
			"detail_type", detailType,
			"event_id", env.EventID,
			"error", err,
		)
		return
	}

	start := time.Now()
	err = h.publisher.Publish(ctx, kafka.Event{
		Key: key,
		Headers: map[string]string{
			"source":      h.source,
			"detail-type": detailType,
		},
		Value: detail,
	})
	h.metrics.SinkDeliveryDuration.WithLabelValues(sinkName).Observe(time.Since(start).Seconds())
	if err != nil {
		h.metrics.SinkDeliveriesTotal.WithLabelValues(sinkName, metrics.OutcomeDeliveryFailed).Inc()
		logArgs := []any{
			"detail_type", detailType,
			"event_id", env.EventID,
			"payload", serializeDetail(detail),
			"error", err,
		}
		if failed := kafka.FailedEntries(err); failed > 0 {
			logArgs = append(logArgs, "failed_entries", failed)
		}
		h.logger.Error("integration bus delivery failed", logArgs...)
		return
	}
	h.metrics.SinkDeliveriesTotal.WithLabelValues(sinkName, metrics.OutcomeDelivered).Inc()
	h.logger.Debug("integration event delivered", "detail_type", detailType, "event_id", env.EventID)
}

// Close waits for in-flight deliveries to finish. Called during shutdown.
func (h *Handler) Close() {
	h.wg.Wait()
}

func serializeDetail(detail any) string {
	data, err := json.Marshal(detail)
	if err != nil {
		return "<unserializable>"
	}
	return string(data)
}
