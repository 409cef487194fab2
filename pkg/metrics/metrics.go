// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	EventsPublishedTotal *prometheus.CounterVec
	ListenerPanicsTotal  *prometheus.CounterVec
	SinkDeliveriesTotal  *prometheus.CounterVec
	SinkDeliveryDuration *prometheus.HistogramVec
	MutationsTotal       *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
}

// Delivery outcome labels used with SinkDeliveriesTotal.
const (
	OutcomeDelivered      = "delivered"
	OutcomeDeliveryFailed = "delivery_failed"
	OutcomeBuildFailed    = "build_failed"
)

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all collectors and registers them with reg. Tests pass a
// private registry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curation_events_published_total",
				Help: "Total domain events published to the in-process bus, by event kind.",
			},
			[]string{"kind"},
		),
		ListenerPanicsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curation_event_listener_panics_total",
				Help: "Total listener panics recovered during bus dispatch, by listener.",
			},
			[]string{"listener"},
		),
		SinkDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curation_sink_deliveries_total",
				Help: "Total sink delivery attempts by sink and outcome (delivered, delivery_failed, build_failed).",
			},
			[]string{"sink", "outcome"},
		),
		SinkDeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curation_sink_delivery_duration_seconds",
				Help:    "Sink delivery round-trip latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"sink"},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curation_mutations_total",
				Help: "Total curation mutations by operation and status.",
			},
			[]string{"operation", "status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of schedule cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of schedule cache misses.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.EventsPublishedTotal,
		m.ListenerPanicsTotal,
		m.SinkDeliveriesTotal,
		m.SinkDeliveryDuration,
		m.MutationsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
