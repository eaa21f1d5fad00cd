package quote

import (
	"context"
	"fmt"

	"github.com/gatti/quote-cache/internal/platform/cache"
	"github.com/gatti/quote-cache/internal/pricing"
)

// WarmupPair names a pair to pre-assign and refresh before first traffic.
type WarmupPair struct {
	Chain    string
	TokenIn  string
	TokenOut string
	Tier     Tier
	Amount   string
}

// warmupProvider adapts the engine to the cache warmer: it assigns each
// configured hot pair to its tier and enqueues a high-priority refresh so
// the store is populated before clients arrive. Implements
// cache.WarmupProvider.
type warmupProvider struct {
	engine *Engine
	pairs  []WarmupPair
	amount string
}

// WarmupProvider returns a warm-up provider for the configured hot pairs.
// defaultAmount is used for pairs that do not name their own.
func (e *Engine) WarmupProvider(pairs []WarmupPair, defaultAmount string) cache.WarmupProvider {
	if defaultAmount == "" {
		defaultAmount = "1000"
	}
	return &warmupProvider{engine: e, pairs: pairs, amount: defaultAmount}
}

func (w *warmupProvider) Name() string { return "hot-pairs" }

// Warmup assigns tiers and enqueues refreshes. Enqueue failures are
// collected rather than aborting; warm-up is best effort.
func (w *warmupProvider) Warmup(ctx context.Context) error {
	var failed int
	for _, pair := range w.pairs {
		w.engine.AssignTier(pair.Chain, pair.TokenIn, pair.TokenOut, pair.Tier)

		amount := pair.Amount
		if amount == "" {
			amount = w.amount
		}

		err := w.engine.ForceRefresh(ctx, pricing.QuoteRequest{
			Chain:     pair.Chain,
			TokenIn:   pair.TokenIn,
			TokenOut:  pair.TokenOut,
			Amount:    amount,
			Direction: pricing.ExactIn,
		})
		if err != nil {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d warmup refreshes not enqueued", failed, len(w.pairs))
	}
	return nil
}
