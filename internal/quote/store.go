package quote

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gatti/quote-cache/internal/platform/cache"
	"github.com/gatti/quote-cache/internal/platform/observability"
)

// Store adapts the key/value cache to entry semantics. Store failures are
// absorbed here: a failed read is a miss, a failed write is dropped. They
// are logged and counted but never surface to callers.
type Store struct {
	cache   cache.Cache
	policy  Policy
	logger  *observability.Logger
	metrics *Metrics
}

// NewStore wraps the given cache.
func NewStore(c cache.Cache, policy Policy, logger *observability.Logger, metrics *Metrics) *Store {
	return &Store{cache: c, policy: policy, logger: logger, metrics: metrics}
}

// Get returns the entry under key, or nil when absent, undecodable, or the
// store failed.
func (s *Store) Get(ctx context.Context, key string) *Entry {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.logger.LogWarn(ctx, "quote store read failed, treating as miss", "key", key, "error", err.Error())
			s.metrics.RecordStoreError(ctx)
		}
		return nil
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.LogWarn(ctx, "quote store entry undecodable, treating as miss", "key", key, "error", err.Error())
		return nil
	}

	return &entry
}

// Set writes the entry under key, best effort.
func (s *Store) Set(ctx context.Context, key string, entry *Entry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		s.logger.LogError(ctx, "failed to marshal cache entry", err, "key", key)
		return
	}

	if err := s.cache.Set(ctx, key, raw, s.policy.StoreTTL()); err != nil {
		s.logger.LogWarn(ctx, "quote store write dropped", "key", key, "error", err.Error())
		s.metrics.RecordStoreError(ctx)
	}
}
