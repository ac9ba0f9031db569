package revocation

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"expenses-tracker/backend/internal/cache"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return NewStore(cache.NewRedisCache(client), time.Second, discardLogger(), nil), mr
}

func TestStore_BlacklistIdempotent(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	if s.IsBlacklisted(ctx, "jti-1") {
		t.Fatal("IsBlacklisted before Blacklist = true")
	}
	s.Blacklist(ctx, "jti-1", time.Minute)
	s.Blacklist(ctx, "jti-1", time.Minute)
	if !s.IsBlacklisted(ctx, "jti-1") {
		t.Fatal("IsBlacklisted after Blacklist = false")
	}
	if !mr.Exists(Key("jti-1")) {
		t.Errorf("key %q missing in redis", Key("jti-1"))
	}
	if keys := mr.Keys(); len(keys) != 1 {
		t.Errorf("keys = %v, want exactly one", keys)
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	s.Blacklist(ctx, "jti-2", 10*time.Second)
	if ttl := mr.TTL(Key("jti-2")); ttl != 10*time.Second {
		t.Errorf("TTL = %v, want 10s", ttl)
	}
	mr.FastForward(11 * time.Second)
	if s.IsBlacklisted(ctx, "jti-2") {
		t.Error("IsBlacklisted after TTL = true")
	}
}

func TestStore_NonPositiveTTLSkipped(t *testing.T) {
	s, mr := newRedisStore(t)
	s.Blacklist(context.Background(), "jti-3", 0)
	s.Blacklist(context.Background(), "jti-4", -time.Second)
	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("keys = %v, want none", keys)
	}
}

func TestStore_Forget(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	s.Blacklist(ctx, "jti-5", time.Minute)
	s.Forget(ctx, "jti-5")
	if s.IsBlacklisted(ctx, "jti-5") {
		t.Error("IsBlacklisted after Forget = true")
	}
}

func TestStore_FailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	s := NewStore(cache.NewRedisCache(client), 100*time.Millisecond, discardLogger(), nil)
	ctx := context.Background()
	s.Blacklist(ctx, "jti-6", time.Minute)
	if s.IsBlacklisted(ctx, "jti-6") {
		t.Error("IsBlacklisted with cache down = true, want false")
	}
	s.Forget(ctx, "jti-6")
}

// slowCache blocks until the context is done, like an unresponsive server.
type slowCache struct {
	calls atomic.Int32
}

func (c *slowCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *slowCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (c *slowCache) Delete(ctx context.Context, keys ...string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *slowCache) DeleteByPattern(ctx context.Context, pattern string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *slowCache) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestStore_TimeoutTreatedAsNotBlacklisted(t *testing.T) {
	c := &slowCache{}
	s := NewStore(c, 20*time.Millisecond, discardLogger(), nil)

	start := time.Now()
	if s.IsBlacklisted(context.Background(), "jti-7") {
		t.Error("IsBlacklisted on timeout = true, want false")
	}
	s.Blacklist(context.Background(), "jti-7", time.Minute)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("calls took %v, timeout not applied", elapsed)
	}
	if c.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", c.calls.Load())
	}
}

func TestStore_MemoryCache(t *testing.T) {
	s := NewStore(cache.NewMemoryCache(nil), 0, nil, nil)
	ctx := context.Background()
	s.Blacklist(ctx, "jti-8", time.Minute)
	if !s.IsBlacklisted(ctx, "jti-8") {
		t.Error("IsBlacklisted = false")
	}
	if s.IsBlacklisted(ctx, "") {
		t.Error("empty jti should never be blacklisted")
	}
}

func TestKey(t *testing.T) {
	if got := Key("abc"); got != "blacklist:abc" {
		t.Errorf("Key = %q", got)
	}
}
