package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is not present in the cache.
	ErrNotFound = errors.New("cache: key not found")
)

// Cache is the contract for a fast key/value store holding opaque byte
// payloads. Implementations must be safe for concurrent use. The TTL passed
// to Set is an upper bound on residency; callers that need finer freshness
// semantics carry their own timestamps inside the payload.
type Cache interface {
	// Get retrieves the payload for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the payload under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}
