// Package ratelimit throttles the public auth endpoints per client IP with fixed-window counters
// kept in the cache. Like the revocation store it never fails its caller: a cache error lets the
// request through and is logged and counted.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"expenses-tracker/backend/internal/cache"
	"expenses-tracker/backend/internal/server/interceptors"
	telemetry "expenses-tracker/backend/internal/telemetry/otel"
)

const keyPrefix = "ratelimit:"

// ErrRateLimited is returned by Allow when the window's budget is spent.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rule allows Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Scopes limited on the auth routes.
const (
	ScopeRegister           = "register"
	ScopeLogin              = "login"
	ScopeRefresh            = "refresh"
	ScopeLogout             = "logout"
	ScopeRequestVerifyEmail = "request_verify_email"
	ScopeRequestReset       = "request_reset_password"
)

// DefaultRules are the per-IP budgets for each scope.
var DefaultRules = map[string]Rule{
	ScopeRegister:           {Limit: 5, Window: time.Minute},
	ScopeLogin:              {Limit: 10, Window: time.Minute},
	ScopeRefresh:            {Limit: 15, Window: time.Minute},
	ScopeLogout:             {Limit: 5, Window: time.Minute},
	ScopeRequestVerifyEmail: {Limit: 3, Window: time.Minute},
	ScopeRequestReset:       {Limit: 3, Window: time.Minute},
}

// Limiter counts requests per scope and key.
type Limiter struct {
	cache   cache.Cache
	rules   map[string]Rule
	timeout time.Duration
	log     *slog.Logger
	metrics *telemetry.Instruments
}

// New returns a Limiter over c. A nil rules map uses DefaultRules; scopes without a rule are not limited.
// timeout bounds each cache call; zero means 200ms. metrics may be nil.
func New(c cache.Cache, rules map[string]Rule, timeout time.Duration, log *slog.Logger, metrics *telemetry.Instruments) *Limiter {
	if rules == nil {
		rules = DefaultRules
	}
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Limiter{cache: c, rules: rules, timeout: timeout, log: log, metrics: metrics}
}

// Key returns the counter key for scope and client.
func Key(scope, client string) string {
	return keyPrefix + scope + ":" + client
}

// Allow counts one request for client in scope. It returns ErrRateLimited once the count passes
// the scope's limit. A cache failure allows the request.
func (l *Limiter) Allow(ctx context.Context, scope, client string) error {
	const op = "ratelimit.Allow"
	rule, ok := l.rules[scope]
	if !ok || rule.Limit <= 0 {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	count, err := l.cache.Increment(cctx, Key(scope, client), rule.Window)
	if err != nil {
		l.log.Warn("cache unavailable, skipping rate limit",
			slog.String("op", op), slog.String("scope", scope), slog.Any("error", err))
		l.metrics.RecordCacheFailure(context.WithoutCancel(ctx), op)
		return nil
	}
	if count > int64(rule.Limit) {
		l.metrics.RecordRateLimited(ctx, scope)
		return ErrRateLimited
	}
	return nil
}

// Middleware limits requests in scope by client IP. Rejected requests get 429 with Retry-After set
// to the scope's window.
func (l *Limiter) Middleware(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := interceptors.ClientIP(r)
			if err := l.Allow(r.Context(), scope, ip); err != nil {
				l.log.Warn("rate limited", slog.String("scope", scope), slog.String("client_ip", ip))
				w.Header().Set("Retry-After", strconv.Itoa(int(l.rules[scope].Window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
