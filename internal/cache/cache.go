// Package cache provides the key/value store with per-key TTL used for token revocation and
// read-through user projections and as the rate limit counter store. Backends: Redis (go-redis) and an in-process map.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a byte-oriented key/value store with per-key TTL.
type Cache interface {
	// Get returns the value for key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A non-positive ttl stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// DeleteByPattern removes every key matching a glob pattern (Redis MATCH syntax).
	DeleteByPattern(ctx context.Context, pattern string) error
	// Increment adds one to the counter under key and returns the new value. The first increment
	// starts a window of length window; the counter disappears when the window closes.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}
