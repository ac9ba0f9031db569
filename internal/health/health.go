// Package health reports readiness of the service's backing stores over gRPC health and HTTP.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultTimeout bounds each dependency ping.
const DefaultTimeout = 2 * time.Second

// Pinger is a dependency that can report whether it is reachable (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// PingContext implements Pinger.
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Checker pings named dependencies and mirrors the result into a gRPC health server.
// Required dependencies gate readiness. Best-effort ones are reported as degraded only.
type Checker struct {
	required   map[string]Pinger
	bestEffort map[string]Pinger
	grpc       *health.Server
	timeout    time.Duration
	log        *slog.Logger
}

// NewChecker returns a Checker. required failures make the service unready; bestEffort failures
// (e.g. the cache) leave it serving. Nil pingers are skipped.
func NewChecker(log *slog.Logger, required, bestEffort map[string]Pinger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		required:   withoutNil(required),
		bestEffort: withoutNil(bestEffort),
		grpc:       health.NewServer(),
		timeout:    DefaultTimeout,
		log:        log,
	}
}

func withoutNil(deps map[string]Pinger) map[string]Pinger {
	clean := make(map[string]Pinger, len(deps))
	for name, p := range deps {
		if p != nil {
			clean[name] = p
		}
	}
	return clean
}

// GRPCServer returns the grpc.health.v1 implementation kept in sync by Update.
func (c *Checker) GRPCServer() *health.Server {
	return c.grpc
}

// Result is the outcome of one Check.
type Result struct {
	// Failed holds unreachable required dependencies.
	Failed map[string]error
	// Degraded holds unreachable best-effort dependencies.
	Degraded map[string]error
}

// Ready reports whether every required dependency responded.
func (r Result) Ready() bool {
	return len(r.Failed) == 0
}

// Check pings every dependency and returns the failures by name.
func (c *Checker) Check(ctx context.Context) Result {
	return Result{Failed: c.ping(ctx, c.required), Degraded: c.ping(ctx, c.bestEffort)}
}

func (c *Checker) ping(ctx context.Context, deps map[string]Pinger) map[string]error {
	failed := make(map[string]error)
	for name, p := range deps {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := p.PingContext(pctx)
		cancel()
		if err != nil {
			failed[name] = err
		}
	}
	return failed
}

// Update runs Check and sets the overall gRPC serving status.
func (c *Checker) Update(ctx context.Context) Result {
	res := c.Check(ctx)
	for name, err := range res.Degraded {
		c.log.Warn("best-effort dependency unavailable", slog.String("dependency", name), slog.Any("error", err))
	}
	if res.Ready() {
		c.grpc.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		return res
	}
	for name, err := range res.Failed {
		c.log.Warn("dependency unavailable", slog.String("dependency", name), slog.Any("error", err))
	}
	c.grpc.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return res
}

// Run calls Update every interval until ctx is done, then marks the service as shutting down.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Update(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.grpc.Shutdown()
			return
		case <-ticker.C:
			c.Update(ctx)
		}
	}
}

type report struct {
	Status   string   `json:"status"`
	Failed   []string `json:"failed,omitempty"`
	Degraded []string `json:"degraded,omitempty"`
}

// ServeHTTP answers readiness checks: 200 while every required dependency responds, 503 otherwise.
// A degraded best-effort dependency is listed but keeps 200.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := c.Update(r.Context())
	rep := report{Status: "ok", Failed: names(res.Failed), Degraded: names(res.Degraded)}
	code := http.StatusOK
	switch {
	case !res.Ready():
		rep.Status = "unavailable"
		code = http.StatusServiceUnavailable
	case len(res.Degraded) > 0:
		rep.Status = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}

func names(m map[string]error) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
