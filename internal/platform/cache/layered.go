package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredCache composes a fast L1 (memory) in front of a slower L2 (Redis).
// Reads fall through L1 → L2 and backfill L1 on an L2 hit. Writes go to both
// layers; L1 receives a capped TTL so a restart of the L2 store cannot leave
// long-lived stale data pinned in process memory.
type LayeredCache struct {
	l1       Cache
	l2       Cache
	l1MaxTTL time.Duration
}

// NewLayeredCache builds a layered cache. Either layer may be nil, in which
// case the other serves alone. l1MaxTTL caps the TTL applied to L1 writes
// and backfills; zero means one minute.
func NewLayeredCache(l1, l2 Cache, l1MaxTTL time.Duration) *LayeredCache {
	if l1MaxTTL <= 0 {
		l1MaxTTL = time.Minute
	}
	return &LayeredCache{l1: l1, l2: l2, l1MaxTTL: l1MaxTTL}
}

// Get reads L1 first, then L2, backfilling L1 on an L2 hit.
func (lc *LayeredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if lc.l1 != nil {
		if val, err := lc.l1.Get(ctx, key); err == nil {
			return val, nil
		}
	}

	if lc.l2 != nil {
		val, err := lc.l2.Get(ctx, key)
		if err == nil {
			if lc.l1 != nil {
				_ = lc.l1.Set(ctx, key, val, lc.l1MaxTTL)
			}
			return val, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return nil, ErrNotFound
}

// Set writes through to both layers. The write succeeds if at least one
// layer accepted it.
func (lc *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var l1Err, l2Err error

	if lc.l1 != nil {
		l1TTL := ttl
		if l1TTL > lc.l1MaxTTL {
			l1TTL = lc.l1MaxTTL
		}
		l1Err = lc.l1.Set(ctx, key, value, l1TTL)
	}

	if lc.l2 != nil {
		l2Err = lc.l2.Set(ctx, key, value, ttl)
	}

	if l1Err != nil && l2Err != nil {
		return l2Err
	}
	if lc.l1 == nil && l2Err != nil {
		return l2Err
	}
	if lc.l2 == nil && l1Err != nil {
		return l1Err
	}

	return nil
}

// Delete removes a key from both layers.
func (lc *LayeredCache) Delete(ctx context.Context, key string) error {
	var l1Err, l2Err error

	if lc.l1 != nil {
		l1Err = lc.l1.Delete(ctx, key)
	}
	if lc.l2 != nil {
		l2Err = lc.l2.Delete(ctx, key)
	}

	if l1Err != nil {
		return l1Err
	}
	return l2Err
}

// Close closes both layers.
func (lc *LayeredCache) Close() error {
	var l1Err, l2Err error

	if lc.l1 != nil {
		l1Err = lc.l1.Close()
	}
	if lc.l2 != nil {
		l2Err = lc.l2.Close()
	}

	if l1Err != nil {
		return l1Err
	}
	return l2Err
}
