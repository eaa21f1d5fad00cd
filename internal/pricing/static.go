package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// StaticFetcher serves canned quotes from memory. It backs the "static"
// upstream provider for local runs, and tests use it to script upstream
// behavior (latency, failures) deterministically.
type StaticFetcher struct {
	mu     sync.RWMutex
	quotes map[string]json.RawMessage
	err    error
	delay  time.Duration

	calls atomic.Int64
}

// NewStaticFetcher creates an empty static fetcher.
func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{quotes: make(map[string]json.RawMessage)}
}

func staticKey(req QuoteRequest) string {
	return strings.ToLower(fmt.Sprintf("%s:%s:%s:%s:%s", req.Chain, req.TokenIn, req.TokenOut, req.Amount, req.Direction))
}

// SetQuote registers the payload returned for a request.
func (f *StaticFetcher) SetQuote(req QuoteRequest, payload json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[staticKey(req)] = payload
}

// SetError makes every fetch fail with err until cleared with nil.
func (f *StaticFetcher) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetDelay adds artificial latency to every fetch.
func (f *StaticFetcher) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Calls returns the number of FetchQuote invocations.
func (f *StaticFetcher) Calls() int64 {
	return f.calls.Load()
}

// FetchQuote returns the registered payload, or a synthesized one when the
// request was never registered.
func (f *StaticFetcher) FetchQuote(ctx context.Context, req QuoteRequest) (json.RawMessage, error) {
	f.calls.Add(1)

	f.mu.RLock()
	err := f.err
	delay := f.delay
	payload, ok := f.quotes[staticKey(req)]
	f.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if !ok {
		synthesized, merr := json.Marshal(map[string]any{
			"chain":     strings.ToLower(req.Chain),
			"tokenIn":   strings.ToLower(req.TokenIn),
			"tokenOut":  strings.ToLower(req.TokenOut),
			"amountIn":  req.Amount,
			"amountOut": req.Amount,
			"tradeType": string(req.Direction),
			"source":    "static",
			"fetchedAt": time.Now().UnixMilli(),
		})
		if merr != nil {
			return nil, merr
		}
		return synthesized, nil
	}

	return payload, nil
}
