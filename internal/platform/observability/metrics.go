package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds the service's OpenTelemetry instruments, exported through
// the Prometheus exporter on the metrics port. The core keeps its own
// lock-free snapshot counters for the JSON /metrics endpoint; these
// instruments mirror those events into the Prometheus scrape surface.
type Metrics struct {
	meter metric.Meter

	// Request path
	QuoteRequests   metric.Int64Counter
	RequestDuration metric.Float64Histogram
	CacheHits       metric.Int64Counter
	CacheMisses     metric.Int64Counter

	// Upstream
	UpstreamCalls    metric.Int64Counter
	UpstreamDuration metric.Float64Histogram

	// Refresh pipeline
	RefreshJobs metric.Int64Counter
	QueueDepth  metric.Int64Gauge

	// Circuit breakers
	CircuitBreakerState metric.Int64Gauge

	// Errors
	Errors metric.Int64Counter

	exporter *prometheus.Exporter
}

// NewMetrics creates the instrument set. When disabled, all instruments are
// nil and the recording helpers become no-ops.
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:    provider.Meter(serviceName),
		exporter: exporter,
	}

	if err := m.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

func (m *Metrics) initInstruments() error {
	var err error

	m.QuoteRequests, err = m.meter.Int64Counter(
		"quotecache.requests",
		metric.WithDescription("Quote requests by outcome (fresh/stale/very_stale/error)"),
	)
	if err != nil {
		return err
	}

	m.RequestDuration, err = m.meter.Float64Histogram(
		"quotecache.request.duration",
		metric.WithDescription("Request serve latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.CacheHits, err = m.meter.Int64Counter(
		"quotecache.cache.hits",
		metric.WithDescription("Total cache hits"),
	)
	if err != nil {
		return err
	}

	m.CacheMisses, err = m.meter.Int64Counter(
		"quotecache.cache.misses",
		metric.WithDescription("Total cache misses"),
	)
	if err != nil {
		return err
	}

	m.UpstreamCalls, err = m.meter.Int64Counter(
		"quotecache.upstream.calls",
		metric.WithDescription("Upstream quote fetches by chain and status"),
	)
	if err != nil {
		return err
	}

	m.UpstreamDuration, err = m.meter.Float64Histogram(
		"quotecache.upstream.duration",
		metric.WithDescription("Upstream fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.RefreshJobs, err = m.meter.Int64Counter(
		"quotecache.refresh.jobs",
		metric.WithDescription("Refresh jobs by priority and status"),
	)
	if err != nil {
		return err
	}

	m.QueueDepth, err = m.meter.Int64Gauge(
		"quotecache.refresh.queue_depth",
		metric.WithDescription("Jobs waiting in the refresh queue"),
	)
	if err != nil {
		return err
	}

	m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"quotecache.circuit_breaker.state",
		metric.WithDescription("Circuit breaker state per chain (0=closed, 1=open, 2=half-open)"),
	)
	if err != nil {
		return err
	}

	m.Errors, err = m.meter.Int64Counter(
		"quotecache.errors",
		metric.WithDescription("Total errors by component"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordRequest records a served request with its outcome and latency.
func (m *Metrics) RecordRequest(ctx context.Context, outcome string, duration time.Duration) {
	if m.QuoteRequests == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.QuoteRequests.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordCacheHit increments the hit counter.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	if m.CacheHits == nil {
		return
	}
	m.CacheHits.Add(ctx, 1)
}

// RecordCacheMiss increments the miss counter.
func (m *Metrics) RecordCacheMiss(ctx context.Context) {
	if m.CacheMisses == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1)
}

// RecordUpstreamCall records an upstream fetch.
func (m *Metrics) RecordUpstreamCall(ctx context.Context, chain string, duration time.Duration, success bool) {
	if m.UpstreamCalls == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("chain", chain),
		attribute.Bool("success", success),
	)
	m.UpstreamCalls.Add(ctx, 1, attrs)
	m.UpstreamDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordRefreshJob records a refresh job outcome ("completed", "failed",
// "retried", "dropped").
func (m *Metrics) RecordRefreshJob(ctx context.Context, priority, status string) {
	if m.RefreshJobs == nil {
		return
	}
	m.RefreshJobs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("priority", priority),
		attribute.String("status", status),
	))
}

// SetQueueDepth records the current refresh queue depth.
func (m *Metrics) SetQueueDepth(ctx context.Context, depth int64) {
	if m.QueueDepth == nil {
		return
	}
	m.QueueDepth.Record(ctx, depth)
}

// SetCircuitBreakerState records a breaker state change.
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, chain string, state int64) {
	if m.CircuitBreakerState == nil {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(
		attribute.String("chain", chain),
	))
}

// RecordError increments the error counter for a component.
func (m *Metrics) RecordError(ctx context.Context, component string) {
	if m.Errors == nil {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
	))
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	if m.exporter == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}
