package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type backend struct {
	name    string
	cache   Cache
	advance func(d time.Duration)
}

func newBackends(t *testing.T) []backend {
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

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	return []backend{
		{"redis", NewRedisCache(client), mr.FastForward},
		{"memory", NewMemoryCache(clock.Now), clock.Advance},
	}
}

func TestCache_SetGetDelete(t *testing.T) {
	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := b.cache.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
				t.Fatalf("Get missing: want ErrMiss, got %v", err)
			}
			if err := b.cache.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := b.cache.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "v" {
				t.Errorf("Get = %q, want v", got)
			}
			if err := b.cache.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := b.cache.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
				t.Errorf("Get after Delete: want ErrMiss, got %v", err)
			}
			if err := b.cache.Delete(ctx); err != nil {
				t.Errorf("Delete with no keys: %v", err)
			}
		})
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			if err := b.cache.Set(ctx, "short", []byte("1"), 2*time.Second); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := b.cache.Set(ctx, "forever", []byte("1"), 0); err != nil {
				t.Fatalf("Set: %v", err)
			}
			b.advance(time.Second)
			if _, err := b.cache.Get(ctx, "short"); err != nil {
				t.Fatalf("Get before expiry: %v", err)
			}
			b.advance(2 * time.Second)
			if _, err := b.cache.Get(ctx, "short"); !errors.Is(err, ErrMiss) {
				t.Errorf("Get after expiry: want ErrMiss, got %v", err)
			}
			b.advance(24 * time.Hour)
			if _, err := b.cache.Get(ctx, "forever"); err != nil {
				t.Errorf("Get without ttl: %v", err)
			}
		})
	}
}

func TestCache_DeleteByPattern(t *testing.T) {
	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{"user:42", "avatar:42:thumb", "user:7", "blacklist:abc"} {
				if err := b.cache.Set(ctx, k, []byte("x"), time.Minute); err != nil {
					t.Fatalf("Set %s: %v", k, err)
				}
			}
			if err := b.cache.DeleteByPattern(ctx, "*42*"); err != nil {
				t.Fatalf("DeleteByPattern: %v", err)
			}
			for _, k := range []string{"user:42", "avatar:42:thumb"} {
				if _, err := b.cache.Get(ctx, k); !errors.Is(err, ErrMiss) {
					t.Errorf("%s should be deleted, got %v", k, err)
				}
			}
			for _, k := range []string{"user:7", "blacklist:abc"} {
				if _, err := b.cache.Get(ctx, k); err != nil {
					t.Errorf("%s should survive, got %v", k, err)
				}
			}
		})
	}
}

func TestRedisCache_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	c := NewRedisCache(client)
	ctx := context.Background()
	if _, err := c.Get(ctx, "k"); err == nil || errors.Is(err, ErrMiss) {
		t.Errorf("Get on closed server: want transport error, got %v", err)
	}
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err == nil {
		t.Error("Set on closed server: want error")
	}
	if err := c.DeleteByPattern(ctx, "*"); err == nil {
		t.Error("DeleteByPattern on closed server: want error")
	}
	if _, err := c.Increment(ctx, "k", time.Minute); err == nil {
		t.Error("Increment on closed server: want error")
	}
}

func TestOpenRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	client, err := OpenRedis("redis://" + mr.Addr() + "/0")
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Errorf("Ping: %v", err)
	}
	client.Close()

	if _, err := OpenRedis("not a url"); err == nil {
		t.Error("OpenRedis with bad url: want error")
	}
}

func TestOpenRedis_ServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	client, err := OpenRedis("redis://" + addr + "/0")
	if err != nil {
		t.Fatalf("OpenRedis with unreachable server: %v", err)
	}
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err == nil {
		t.Error("Ping on closed server: want error")
	}
}

func TestCache_IncrementFixedWindow(t *testing.T) {
	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			for want := int64(1); want <= 3; want++ {
				got, err := b.cache.Increment(ctx, "rl:login:1.2.3.4", time.Minute)
				if err != nil {
					t.Fatalf("Increment: %v", err)
				}
				if got != want {
					t.Fatalf("Increment = %d, want %d", got, want)
				}
			}
			// Later hits do not extend the window.
			b.advance(59 * time.Second)
			if got, _ := b.cache.Increment(ctx, "rl:login:1.2.3.4", time.Minute); got != 4 {
				t.Errorf("Increment before window end = %d, want 4", got)
			}
			b.advance(2 * time.Second)
			got, err := b.cache.Increment(ctx, "rl:login:1.2.3.4", time.Minute)
			if err != nil {
				t.Fatalf("Increment: %v", err)
			}
			if got != 1 {
				t.Errorf("Increment after window = %d, want 1", got)
			}
		})
	}
}

func TestMemoryCache_ContextCanceled(t *testing.T) {
	c := NewMemoryCache(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Set(ctx, "k", []byte("v"), 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Set: want context.Canceled, got %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get: want context.Canceled, got %v", err)
	}
}
