// Package revocation is the blacklist of refresh token ids that were rotated or logged out.
//
// The store sits over the cache and never fails its caller: a cache error is logged and counted,
// reads report "not blacklisted" and writes are dropped. The user's LastRefreshJTI stays the
// authoritative check.
package revocation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"expenses-tracker/backend/internal/cache"
	"expenses-tracker/backend/internal/telemetry/otel"
)

const keyPrefix = "blacklist:"

// DefaultTimeout bounds each cache call when none is configured.
const DefaultTimeout = 200 * time.Millisecond

// marker is the stored value; only key existence matters.
var marker = []byte("1")

// Store blacklists token ids in a Cache with a TTL.
type Store struct {
	cache   cache.Cache
	timeout time.Duration
	log     *slog.Logger
	metrics *otel.Instruments
}

// NewStore returns a Store over c. timeout bounds each cache round-trip; zero uses DefaultTimeout.
// metrics may be nil.
func NewStore(c cache.Cache, timeout time.Duration, log *slog.Logger, metrics *otel.Instruments) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{cache: c, timeout: timeout, log: log, metrics: metrics}
}

// Key returns the cache key for jti.
func Key(jti string) string {
	return keyPrefix + jti
}

// Blacklist marks jti as revoked for ttl. Repeating the call refreshes the TTL.
// Non-positive ttl is a no-op: the token has already expired and the codec rejects it.
func (s *Store) Blacklist(ctx context.Context, jti string, ttl time.Duration) {
	const op = "revocation.Blacklist"
	if jti == "" || ttl <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.cache.Set(ctx, Key(jti), marker, ttl); err != nil {
		s.fail(ctx, op, err)
	}
}

// IsBlacklisted reports whether jti is revoked. A cache failure or timeout reports false.
func (s *Store) IsBlacklisted(ctx context.Context, jti string) bool {
	const op = "revocation.IsBlacklisted"
	if jti == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.cache.Get(ctx, Key(jti))
	switch {
	case err == nil:
		return true
	case errors.Is(err, cache.ErrMiss):
		return false
	default:
		s.fail(ctx, op, err)
		return false
	}
}

// Forget removes jti from the blacklist early.
func (s *Store) Forget(ctx context.Context, jti string) {
	const op = "revocation.Forget"
	if jti == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.cache.Delete(ctx, Key(jti)); err != nil {
		s.fail(ctx, op, err)
	}
}

func (s *Store) fail(ctx context.Context, op string, err error) {
	s.log.Warn("cache unavailable, continuing without blacklist", slog.String("op", op), slog.Any("error", err))
	s.metrics.RecordCacheFailure(context.WithoutCancel(ctx), op)
}
