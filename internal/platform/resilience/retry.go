package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds retry/backoff settings.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns the default retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.1,
	}
}

// Retry executes fn with exponential backoff between attempts.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-time.After(Backoff(attempt, cfg.BaseDelay, cfg.MaxDelay, cfg.Jitter)):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("max retry attempts reached: %w", lastErr)
}

// Backoff computes the delay before retry number attempt (zero-based):
// baseDelay * 2^attempt, capped at maxDelay, randomized by ±jitter.
func Backoff(attempt int, baseDelay, maxDelay time.Duration, jitter float64) time.Duration {
	delay := float64(baseDelay) * math.Pow(2, float64(attempt))

	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	if jitter > 0 {
		amount := delay * jitter
		delay = delay - amount + rand.Float64()*amount*2
	}

	return time.Duration(delay)
}
