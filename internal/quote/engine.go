package quote

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gatti/quote-cache/internal/platform/observability"
	"github.com/gatti/quote-cache/internal/platform/resilience"
	"github.com/gatti/quote-cache/internal/pricing"
)

// Result is a served quote plus its staleness envelope. The payload is
// opaque; Stale marks a serve past the tier TTL but within the stale floor,
// VeryStale marks an error-fallback serve with Err carrying the upstream
// failure.
type Result struct {
	Quote     json.RawMessage
	Cached    bool
	Stale     bool
	VeryStale bool
	Err       string
}

// Engine composes the store, tier registry, freshness policy, refresh queue
// and upstream gate into the read-through request path. One Engine value is
// constructed at startup and owns no global state.
type Engine struct {
	store    *Store
	registry *Registry
	policy   Policy
	queue    *RefreshQueue
	upstream *Upstream
	metrics  *Metrics
	otel     *observability.Metrics
	logger   *observability.Logger

	maxAttempts int
	flight      singleflight.Group
}

// EngineConfig holds the engine's collaborators.
type EngineConfig struct {
	Store       *Store
	Registry    *Registry
	Policy      Policy
	Queue       *RefreshQueue
	Upstream    *Upstream
	Metrics     *Metrics
	Otel        *observability.Metrics
	Logger      *observability.Logger
	MaxAttempts int
}

// NewEngine builds an engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Engine{
		store:       cfg.Store,
		registry:    cfg.Registry,
		policy:      cfg.Policy,
		queue:       cfg.Queue,
		upstream:    cfg.Upstream,
		metrics:     cfg.Metrics,
		otel:        cfg.Otel,
		logger:      cfg.Logger,
		maxAttempts: cfg.MaxAttempts,
	}
}

// GetQuote serves a read request: fresh entries return immediately, stale
// but servable entries return immediately with a background refresh
// scheduled, and everything else fetches synchronously through the breaker
// with a very-stale fallback on failure.
func (e *Engine) GetQuote(ctx context.Context, req pricing.QuoteRequest) (*Result, error) {
	key := Fingerprint(req)
	start := time.Now()
	defer func() {
		e.metrics.RecordLatency(time.Since(start))
	}()

	entry := e.store.Get(ctx, key)
	now := time.Now()

	if entry != nil && e.policy.IsFresh(entry, now) {
		e.metrics.RecordHit(ctx)
		e.recordOutcome(ctx, "fresh", start)
		return &Result{Quote: entry.Quote, Cached: true}, nil
	}

	if entry != nil && e.policy.IsServableStale(entry, now) {
		e.scheduleRefresh(ctx, req)
		e.metrics.RecordHit(ctx)
		e.recordOutcome(ctx, "stale", start)
		return &Result{Quote: entry.Quote, Cached: true, Stale: true}, nil
	}

	// Miss, or an entry past the stale floor: fetch now on the request's
	// context so the latency is the client's to observe.
	e.metrics.RecordMiss(ctx)

	raw, fetchErr := e.fetchShared(ctx, key, req)
	if fetchErr == nil {
		fresh := NewEntry(raw, e.registry.TierOf(req.PairKey()))
		e.store.Set(ctx, key, fresh)
		e.recordOutcome(ctx, "fetched", start)
		return &Result{Quote: raw}, nil
	}

	if errors.Is(fetchErr, resilience.ErrCircuitOpen) {
		e.metrics.RecordCircuitOpen(ctx)
	} else {
		e.metrics.RecordError(ctx)
	}

	// Fallback re-read: a very stale entry beats an error.
	if fallback := e.store.Get(ctx, key); fallback != nil {
		e.logger.LogWarn(ctx, "serving very stale quote after upstream failure",
			"key", key,
			"age", fallback.Age(time.Now()).String(),
			"error", fetchErr.Error(),
		)
		e.recordOutcome(ctx, "very_stale", start)
		return &Result{
			Quote:     fallback.Quote,
			Cached:    true,
			VeryStale: true,
			Err:       fetchErr.Error(),
		}, nil
	}

	e.recordOutcome(ctx, "error", start)
	return nil, fetchErr
}

// fetchShared coalesces concurrent synchronous fetches per fingerprint:
// one upstream call runs, every waiter shares its result. Each waiter still
// honors its own deadline; abandoning the wait does not cancel the shared
// call for the others.
func (e *Engine) fetchShared(ctx context.Context, key string, req pricing.QuoteRequest) (json.RawMessage, error) {
	ch := e.flight.DoChan(key, func() (interface{}, error) {
		return e.upstream.Fetch(context.WithoutCancel(ctx), req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	}
}

// scheduleRefresh enqueues a background refresh for the request. Duplicates
// coalesce in the queue; a full queue drops the refresh silently.
func (e *Engine) scheduleRefresh(ctx context.Context, req pricing.QuoteRequest) {
	job := NewJob(req, PriorityBackground, e.maxAttempts)
	if err := e.queue.Enqueue(ctx, job); err != nil && !errors.Is(err, ErrQueueFull) {
		e.logger.LogWarn(ctx, "background refresh enqueue failed", "key", job.Key, "error", err.Error())
	}
}

// AssignTier sets a pair's tier.
func (e *Engine) AssignTier(chain, tokenIn, tokenOut string, tier Tier) {
	e.registry.Assign(PairKey(chain, tokenIn, tokenOut), tier)
}

// TierOf resolves a pair's tier.
func (e *Engine) TierOf(chain, tokenIn, tokenOut string) Tier {
	return e.registry.TierOf(PairKey(chain, tokenIn, tokenOut))
}

// ForceRefresh enqueues a high-priority refresh. Unlike background
// refreshes, a full queue is surfaced to the caller.
func (e *Engine) ForceRefresh(ctx context.Context, req pricing.QuoteRequest) error {
	return e.queue.Enqueue(ctx, NewJob(req, PriorityHigh, e.maxAttempts))
}

// Metrics exposes the engine's snapshot metrics.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// UpstreamHealth exposes per-chain upstream health.
func (e *Engine) UpstreamHealth() []ChainHealth {
	return e.upstream.Health()
}

func (e *Engine) recordOutcome(ctx context.Context, outcome string, start time.Time) {
	if e.otel != nil {
		e.otel.RecordRequest(ctx, outcome, time.Since(start))
	}
}
