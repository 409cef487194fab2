// Command curation starts the corpus curation service.
//
// It serves the curation HTTP API (approve, reject, update, remove,
// schedule, unschedule, reschedule) and distributes every curation state
// change to the analytics collector and the integration event bus through
// the in-process domain event bus. Sink delivery is fire-and-forget; a sink
// failure never affects a mutation's response.
//
// Usage:
//
//	go run ./cmd/curation [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/curation-tools/corpus-platform/internal/curation"
	"github.com/curation-tools/corpus-platform/internal/curation/cache"
	"github.com/curation-tools/corpus-platform/internal/curation/handler"
	"github.com/curation-tools/corpus-platform/internal/curation/store"
	"github.com/curation-tools/corpus-platform/internal/events"
	"github.com/curation-tools/corpus-platform/internal/events/analyticsink"
	"github.com/curation-tools/corpus-platform/internal/events/integrationsink"
	"github.com/curation-tools/corpus-platform/pkg/analytics"
	"github.com/curation-tools/corpus-platform/pkg/config"
	"github.com/curation-tools/corpus-platform/pkg/health"
	"github.com/curation-tools/corpus-platform/pkg/kafka"
	"github.com/curation-tools/corpus-platform/pkg/logger"
	"github.com/curation-tools/corpus-platform/pkg/metrics"
	"github.com/curation-tools/corpus-platform/pkg/middleware"
	"github.com/curation-tools/corpus-platform/pkg/postgres"
	"github.com/curation-tools/corpus-platform/pkg/redis"
	"github.com/curation-tools/corpus-platform/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting curation service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var db *postgres.Client
	if err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 5}, func() error {
		var connErr error
		db, connErr = postgres.New(cfg.Postgres)
		return connErr
	}); err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IntegrationEvents)
	defer producer.Close()

	// One bus per process; all subscription happens here, before the HTTP
	// server accepts traffic.
	builder := events.NewBuilder(cfg.Events.Source, cfg.Events.SchemaVersion)
	bus := events.NewBus(builder, m)

	analyticsKinds, err := events.ParseKinds(cfg.Events.AnalyticsKinds)
	if err != nil {
		slog.Error("invalid analytics kind configuration", "error", err)
		os.Exit(1)
	}
	analyticsSink, err := analyticsink.New(bus, analytics.NewClient(cfg.Analytics), m, analyticsKinds)
	if err != nil {
		slog.Error("failed to register analytics sink", "error", err)
		os.Exit(1)
	}

	detailTypes, err := parseDetailTypes(cfg.Events.Integration.DetailTypes)
	if err != nil {
		slog.Error("invalid integration detail-type configuration", "error", err)
		os.Exit(1)
	}
	integrationSink, err := integrationsink.New(bus, producer, m, cfg.Events.Integration.Source, detailTypes)
	if err != nil {
		slog.Error("failed to register integration sink", "error", err)
		os.Exit(1)
	}
	slog.Info("event sinks registered",
		"analytics_kinds", len(analyticsKinds),
		"integration_kinds", len(detailTypes),
	)

	scheduleCache := cache.New(redisClient, cfg.Redis, m)
	service := curation.NewService(store.New(db), bus, scheduleCache, m)
	curationHandler := handler.New(service)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	curationHandler.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("curation service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Drain in-flight sink deliveries before the producer closes.
	analyticsSink.Close()
	integrationSink.Close()

	slog.Info("curation service stopped")
}

// parseDetailTypes validates the configured kind names against the taxonomy.
func parseDetailTypes(raw map[string]string) (map[events.Kind]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[events.Kind]string, len(raw))
	for name, detailType := range raw {
		kind, err := events.ParseKind(name)
		if err != nil {
			return nil, err
		}
		out[kind] = detailType
	}
	return out, nil
}
