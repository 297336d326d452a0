// Package cache provides the TTL key-value store used by the provider
// layer to deduplicate upstream fetches.
//
// The store is deliberately fail-open: a broken backend behaves like an
// unconditional miss so fetching is never blocked by cache trouble.
package cache

import (
	"context"
	"time"
)

// Store is the cache capability injected into the provider service.
//
// Get after expiry behaves exactly like a miss. Concurrent Set calls for
// the same key are last-write-wins.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, payload string, ttl time.Duration)
}
