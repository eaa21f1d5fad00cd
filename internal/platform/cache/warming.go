package cache

import (
	"context"
	"time"

	"github.com/gatti/quote-cache/internal/platform/observability"
)

// WarmupProvider pre-populates the cache with initial data. Implementations
// should be idempotent; warm-up may run more than once.
type WarmupProvider interface {
	// Name identifies the provider in logs.
	Name() string

	// Warmup loads the provider's data into the cache.
	Warmup(ctx context.Context) error
}

// WarmupResult is the outcome of warming a single provider.
type WarmupResult struct {
	Provider string
	Duration time.Duration
	Err      error
}

// Warmer runs registered warm-up providers at startup. Failures are logged
// and reported but never abort startup.
type Warmer struct {
	providers []WarmupProvider
	logger    *observability.Logger
	timeout   time.Duration
}

// NewWarmer creates a warmer with the given overall timeout.
func NewWarmer(logger *observability.Logger, timeout time.Duration) *Warmer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Warmer{logger: logger, timeout: timeout}
}

// Register adds a warm-up provider.
func (w *Warmer) Register(provider WarmupProvider) {
	w.providers = append(w.providers, provider)
}

// Warmup runs every registered provider sequentially and returns the
// per-provider results. The aggregate error count is the number of results
// with a non-nil Err.
func (w *Warmer) Warmup(ctx context.Context) []WarmupResult {
	if len(w.providers) == 0 {
		return nil
	}

	warmupCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	results := make([]WarmupResult, 0, len(w.providers))
	for _, provider := range w.providers {
		start := time.Now()
		err := provider.Warmup(warmupCtx)
		result := WarmupResult{
			Provider: provider.Name(),
			Duration: time.Since(start),
			Err:      err,
		}
		results = append(results, result)

		if err != nil {
			w.logger.LogWarn(ctx, "cache warmup failed",
				"provider", result.Provider,
				"duration", result.Duration.String(),
				"error", err.Error(),
			)
		} else {
			w.logger.LogInfo(ctx, "cache warmup completed",
				"provider", result.Provider,
				"duration", result.Duration.String(),
			)
		}
	}

	return results
}
