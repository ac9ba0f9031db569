package security

import (
	"sync"
	"time"
)

// testSecret is an HMAC key for unit tests only. Do not use in production.
const testSecret = "test-secret-key-for-unit-tests-only-0123456789"

// NewTestTokenProvider returns an HS256 TokenProvider with the package default TTLs and the given clock.
// A nil clock uses time.Now. For unit tests only.
func NewTestTokenProvider(now func() time.Time) *TokenProvider {
	p, err := NewTokenProvider(TokenConfig{Secret: []byte(testSecret), Algorithm: "HS256", Now: now})
	if err != nil {
		panic(err)
	}
	return p
}

// TestClock is a settable clock for tests.
type TestClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewTestClock returns a clock fixed at t, truncated to whole seconds.
func NewTestClock(t time.Time) *TestClock {
	return &TestClock{t: t.Truncate(time.Second)}
}

// Now returns the current clock value.
func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
