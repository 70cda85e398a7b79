// Package telemetry wires up Prometheus + OpenTelemetry exporters used across
// the resolver.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/smolgroot/skypier-blackhole/pkg/config"
	"github.com/smolgroot/skypier-blackhole/pkg/logging"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Telemetry holds telemetry providers and exporters.
type Telemetry struct {
	cfg                *config.TelemetryConfig
	meterProvider      metric.MeterProvider
	tracerProvider     trace.TracerProvider
	prometheusExporter *prometheus.Exporter
	prometheusServer   *http.Server
	logger             *logging.Logger
}

// Metrics holds the DNS-domain metrics recorded per query (spec.md §5's
// query.* events, expressed as counters/histograms rather than log lines).
type Metrics struct {
	DNSQueriesTotal     metric.Int64Counter
	DNSQueriesByType    metric.Int64Counter
	DNSQueryDuration    metric.Float64Histogram
	DNSBlockedQueries   metric.Int64Counter
	DNSForwardedQueries metric.Int64Counter
	DNSForwardErrors    metric.Int64Counter

	ActiveClients metric.Int64UpDownCounter
	BlocklistSize metric.Int64UpDownCounter

	lastBlocklistSize atomic.Int64
}

// RecordBlocklistSize sets the blocklist.size gauge to size. BlocklistSize
// is an UpDownCounter, which only supports relative Add calls, so this
// tracks the previously recorded value and applies the delta.
func (m *Metrics) RecordBlocklistSize(ctx context.Context, size int64) {
	prev := m.lastBlocklistSize.Swap(size)
	m.BlocklistSize.Add(ctx, size-prev)
}

// New creates a new telemetry instance. Prometheus is served at
// cfg.PrometheusAddr whenever cfg.Enabled is true; tracing is always a noop
// provider since nothing in this resolver emits spans yet.
func New(ctx context.Context, cfg *config.TelemetryConfig, logger *logging.Logger) (*Telemetry, error) {
	if !cfg.Enabled {
		logger.Info("telemetry disabled")
		return &Telemetry{
			cfg:            cfg,
			meterProvider:  noop.NewMeterProvider(),
			tracerProvider: tracenoop.NewTracerProvider(),
			logger:         logger,
		}, nil
	}

	t := &Telemetry{
		cfg:            cfg,
		logger:         logger,
		tracerProvider: tracenoop.NewTracerProvider(),
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	if err := t.setupMetrics(res); err != nil {
		return nil, fmt.Errorf("telemetry: setup metrics: %w", err)
	}

	otel.SetTracerProvider(t.tracerProvider)

	logger.Info("telemetry initialized",
		"service", cfg.ServiceName, "version", cfg.ServiceVersion, "prometheus_addr", cfg.PrometheusAddr)

	return t, nil
}

func (t *Telemetry) setupMetrics(res *resource.Resource) error {
	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}
	t.prometheusExporter = exporter

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	t.meterProvider = provider
	otel.SetMeterProvider(provider)

	return t.startPrometheusServer()
}

func (t *Telemetry) startPrometheusServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	t.prometheusServer = &http.Server{
		Addr:              t.cfg.PrometheusAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := t.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.logger.Error("prometheus server failed", "error", err)
		}
	}()

	return nil
}

// InitMetrics initializes and returns the resolver's metric instruments.
func (t *Telemetry) InitMetrics() (*Metrics, error) {
	meter := t.meterProvider.Meter("skypier-blackhole")

	queriesTotal, err := meter.Int64Counter("dns.queries.total",
		metric.WithDescription("Total number of DNS queries received"))
	if err != nil {
		return nil, fmt.Errorf("queries.total counter: %w", err)
	}

	queriesByType, err := meter.Int64Counter("dns.queries.by_type",
		metric.WithDescription("DNS queries by query type"))
	if err != nil {
		return nil, fmt.Errorf("queries.by_type counter: %w", err)
	}

	queryDuration, err := meter.Float64Histogram("dns.query.duration",
		metric.WithDescription("DNS query processing duration in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("query.duration histogram: %w", err)
	}

	blockedQueries, err := meter.Int64Counter("dns.queries.blocked",
		metric.WithDescription("Number of blocked DNS queries"))
	if err != nil {
		return nil, fmt.Errorf("queries.blocked counter: %w", err)
	}

	forwardedQueries, err := meter.Int64Counter("dns.queries.forwarded",
		metric.WithDescription("Number of forwarded DNS queries"))
	if err != nil {
		return nil, fmt.Errorf("queries.forwarded counter: %w", err)
	}

	forwardErrors, err := meter.Int64Counter("dns.forward.errors",
		metric.WithDescription("Number of upstream forwarding failures"))
	if err != nil {
		return nil, fmt.Errorf("forward.errors counter: %w", err)
	}

	activeClients, err := meter.Int64UpDownCounter("clients.active",
		metric.WithDescription("Number of in-flight queries"))
	if err != nil {
		return nil, fmt.Errorf("clients.active gauge: %w", err)
	}

	blocklistSize, err := meter.Int64UpDownCounter("blocklist.size",
		metric.WithDescription("Number of names in the published blocklist snapshot"))
	if err != nil {
		return nil, fmt.Errorf("blocklist.size gauge: %w", err)
	}

	return &Metrics{
		DNSQueriesTotal:     queriesTotal,
		DNSQueriesByType:    queriesByType,
		DNSQueryDuration:    queryDuration,
		DNSBlockedQueries:   blockedQueries,
		DNSForwardedQueries: forwardedQueries,
		DNSForwardErrors:    forwardErrors,
		ActiveClients:       activeClients,
		BlocklistSize:       blocklistSize,
	}, nil
}

// MeterProvider returns the meter provider.
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// TracerProvider returns the tracer provider.
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// Shutdown gracefully shuts down telemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.prometheusServer != nil {
		if err := t.prometheusServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("prometheus server shutdown: %w", err))
		}
	}

	if provider, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		if err := provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown errors: %v", errs)
	}

	t.logger.Info("telemetry shut down")
	return nil
}
