package quote

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gatti/quote-cache/internal/platform/observability"
	"github.com/gatti/quote-cache/internal/pricing"
)

// Sweeper schedules background refreshes for every member of each
// refreshable tier at that tier's cadence. Each tier gets its own ticker
// goroutine, so a slow sweep of one tier never delays another, and ticks of
// the same tier are independent.
//
// Sweeps use a fixed conventional amount so proactive fetches land on the
// same fingerprint common client requests read.
type Sweeper struct {
	registry *Registry
	queue    *RefreshQueue
	policy   Policy
	logger   *observability.Logger

	amount      string
	maxAttempts int

	wg sync.WaitGroup
}

// NewSweeper creates a sweeper. amount defaults to "1000".
func NewSweeper(registry *Registry, queue *RefreshQueue, policy Policy, amount string, maxAttempts int, logger *observability.Logger) *Sweeper {
	if amount == "" {
		amount = "1000"
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Sweeper{
		registry:    registry,
		queue:       queue,
		policy:      policy,
		logger:      logger,
		amount:      amount,
		maxAttempts: maxAttempts,
	}
}

// Start launches one ticker per refreshable tier. Tickers run until ctx is
// cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	for tier, cfg := range s.policy.Tiers {
		if cfg.RefreshPeriod <= 0 {
			continue
		}

		s.wg.Add(1)
		go func(tier Tier, period time.Duration) {
			defer s.wg.Done()
			s.run(ctx, tier, period)
		}(tier, cfg.RefreshPeriod)
	}
}

// Wait blocks until every tier ticker has exited.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context, tier Tier, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.sweep(ctx, tier)
			}()
		}
	}
}

// sweep enqueues a background refresh for every pair in the tier. A full
// queue drops the refresh silently; the next tick retries.
func (s *Sweeper) sweep(ctx context.Context, tier Tier) {
	members := s.registry.MembersOf(tier)
	if len(members) == 0 {
		return
	}

	enqueued, dropped := 0, 0
	for _, pairKey := range members {
		chain, tokenIn, tokenOut, ok := SplitPairKey(pairKey)
		if !ok {
			s.logger.LogWarn(ctx, "skipping malformed pair key", "pair", pairKey, "tier", string(tier))
			continue
		}

		job := NewJob(pricing.QuoteRequest{
			Chain:     chain,
			TokenIn:   tokenIn,
			TokenOut:  tokenOut,
			Amount:    s.amount,
			Direction: pricing.ExactIn,
		}, PriorityBackground, s.maxAttempts)

		if err := s.queue.Enqueue(ctx, job); err != nil {
			if errors.Is(err, ErrQueueFull) {
				dropped++
				continue
			}
			s.logger.LogWarn(ctx, "sweep enqueue failed", "pair", pairKey, "error", err.Error())
			continue
		}
		enqueued++
	}

	s.logger.LogDebug(ctx, "tier sweep complete",
		"tier", string(tier),
		"members", len(members),
		"enqueued", enqueued,
		"dropped", dropped,
	)
}
