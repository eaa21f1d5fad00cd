package quote

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gatti/quote-cache/internal/platform/observability"
)

// latencyWindow is the number of request latencies retained for the
// snapshot statistics.
const latencyWindow = 1000

// Metrics holds the engine's counters and the bounded latency window. All
// updates are atomic so recording never blocks the request path. Counters
// only increase. The optional observability.Metrics mirror feeds the same
// events into the Prometheus scrape surface.
type Metrics struct {
	hits        atomic.Int64
	misses      atomic.Int64
	errors      atomic.Int64
	circuitOpen atomic.Int64
	storeErrors atomic.Int64

	jobsActive    atomic.Int64
	jobsWaiting   atomic.Int64
	jobsCompleted atomic.Int64
	jobsFailed    atomic.Int64

	latencies [latencyWindow]atomic.Int64 // microseconds
	latencyN  atomic.Uint64

	otel *observability.Metrics
}

// NewMetrics creates a metrics holder. otel may be nil.
func NewMetrics(otel *observability.Metrics) *Metrics {
	return &Metrics{otel: otel}
}

// RecordHit counts a cache hit (fresh or servable-stale).
func (m *Metrics) RecordHit(ctx context.Context) {
	m.hits.Add(1)
	if m.otel != nil {
		m.otel.RecordCacheHit(ctx)
	}
}

// RecordMiss counts a cache miss.
func (m *Metrics) RecordMiss(ctx context.Context) {
	m.misses.Add(1)
	if m.otel != nil {
		m.otel.RecordCacheMiss(ctx)
	}
}

// RecordError counts a request that surfaced an upstream error.
func (m *Metrics) RecordError(ctx context.Context) {
	m.errors.Add(1)
	if m.otel != nil {
		m.otel.RecordError(ctx, "request")
	}
}

// RecordCircuitOpen counts a request rejected by an open breaker.
func (m *Metrics) RecordCircuitOpen(ctx context.Context) {
	m.circuitOpen.Add(1)
	if m.otel != nil {
		m.otel.RecordError(ctx, "circuit_open")
	}
}

// RecordStoreError counts a store failure absorbed by the engine.
func (m *Metrics) RecordStoreError(ctx context.Context) {
	m.storeErrors.Add(1)
	if m.otel != nil {
		m.otel.RecordError(ctx, "store")
	}
}

// RecordLatency records a request's serve latency into the ring. O(1),
// lock-free.
func (m *Metrics) RecordLatency(d time.Duration) {
	n := m.latencyN.Add(1) - 1
	m.latencies[n%latencyWindow].Store(d.Microseconds())
}

// JobStarted marks a dequeued job as active.
func (m *Metrics) JobStarted() {
	m.jobsActive.Add(1)
}

// JobFinished marks an active job completed or failed.
func (m *Metrics) JobFinished(success bool) {
	m.jobsActive.Add(-1)
	if success {
		m.jobsCompleted.Add(1)
	} else {
		m.jobsFailed.Add(1)
	}
}

// JobRetried marks an active job as re-enqueued for a later attempt. It is
// neither completed nor failed yet.
func (m *Metrics) JobRetried() {
	m.jobsActive.Add(-1)
}

// SetWaiting records the refresh queue depth.
func (m *Metrics) SetWaiting(ctx context.Context, n int) {
	m.jobsWaiting.Store(int64(n))
	if m.otel != nil {
		m.otel.SetQueueDepth(ctx, int64(n))
	}
}

// JobsSnapshot is the worker-pool portion of a metrics snapshot.
type JobsSnapshot struct {
	Active    int64 `json:"active"`
	Waiting   int64 `json:"waiting"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// LatencySnapshot summarizes the bounded latency window.
type LatencySnapshot struct {
	Count int64   `json:"count"`
	AvgMs float64 `json:"avgMs"`
	P50Ms float64 `json:"p50Ms"`
	P95Ms float64 `json:"p95Ms"`
	P99Ms float64 `json:"p99Ms"`
}

// Snapshot is the JSON shape served by GET /metrics.
type Snapshot struct {
	CacheHits   int64           `json:"cacheHits"`
	CacheMisses int64           `json:"cacheMisses"`
	HitRate     float64         `json:"hitRate"`
	Errors      int64           `json:"errors"`
	CircuitOpen int64           `json:"circuitOpenRejections"`
	StoreErrors int64           `json:"storeErrors"`
	Jobs        JobsSnapshot    `json:"jobs"`
	Latency     LatencySnapshot `json:"latency"`
	Timestamp   int64           `json:"timestamp"`
}

// Snapshot captures the current counters and latency statistics.
func (m *Metrics) Snapshot() Snapshot {
	hits := m.hits.Load()
	misses := m.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Snapshot{
		CacheHits:   hits,
		CacheMisses: misses,
		HitRate:     hitRate,
		Errors:      m.errors.Load(),
		CircuitOpen: m.circuitOpen.Load(),
		StoreErrors: m.storeErrors.Load(),
		Jobs: JobsSnapshot{
			Active:    m.jobsActive.Load(),
			Waiting:   m.jobsWaiting.Load(),
			Completed: m.jobsCompleted.Load(),
			Failed:    m.jobsFailed.Load(),
		},
		Latency:   m.latencyStats(),
		Timestamp: time.Now().UnixMilli(),
	}
}

func (m *Metrics) latencyStats() LatencySnapshot {
	n := m.latencyN.Load()
	count := int(n)
	if count > latencyWindow {
		count = latencyWindow
	}
	if count == 0 {
		return LatencySnapshot{}
	}

	samples := make([]int64, count)
	var sum int64
	for i := 0; i < count; i++ {
		v := m.latencies[i].Load()
		samples[i] = v
		sum += v
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	toMs := func(us int64) float64 { return float64(us) / 1000 }
	percentile := func(p float64) float64 {
		idx := int(p * float64(count-1))
		return toMs(samples[idx])
	}

	return LatencySnapshot{
		Count: int64(count),
		AvgMs: toMs(sum) / float64(count),
		P50Ms: percentile(0.50),
		P95Ms: percentile(0.95),
		P99Ms: percentile(0.99),
	}
}
