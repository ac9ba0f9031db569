package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func ok(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func servingStatus(t *testing.T, c *Checker) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.GRPCServer().Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	return resp.GetStatus()
}

func readyz(t *testing.T, c *Checker) (int, report) {
	t.Helper()
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var rep report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, rep
}

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(nil,
		map[string]Pinger{"database": PingFunc(ok), "none": nil},
		map[string]Pinger{"cache": PingFunc(ok)},
	)
	if res := c.Update(context.Background()); !res.Ready() || len(res.Degraded) != 0 {
		t.Fatalf("Update = %+v, want ready and not degraded", res)
	}
	if got := servingStatus(t, c); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", got)
	}

	code, rep := readyz(t, c)
	if code != http.StatusOK || rep.Status != "ok" {
		t.Errorf("readyz = %d %+v, want 200 ok", code, rep)
	}
}

func TestChecker_RequiredDependencyDown(t *testing.T) {
	c := NewChecker(nil,
		map[string]Pinger{"database": PingFunc(down)},
		map[string]Pinger{"cache": PingFunc(ok)},
	)

	code, rep := readyz(t, c)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("HTTP status = %d, want 503", code)
	}
	if rep.Status != "unavailable" || len(rep.Failed) != 1 || rep.Failed[0] != "database" {
		t.Errorf("report = %+v, want database failed", rep)
	}
	if got := servingStatus(t, c); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", got)
	}
}

func TestChecker_CacheDownStaysReady(t *testing.T) {
	c := NewChecker(nil,
		map[string]Pinger{"database": PingFunc(ok)},
		map[string]Pinger{"cache": PingFunc(down)},
	)

	code, rep := readyz(t, c)
	if code != http.StatusOK {
		t.Fatalf("HTTP status = %d, want 200", code)
	}
	if rep.Status != "degraded" || len(rep.Failed) != 0 || len(rep.Degraded) != 1 || rep.Degraded[0] != "cache" {
		t.Errorf("report = %+v, want cache degraded", rep)
	}
	if got := servingStatus(t, c); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", got)
	}
}
