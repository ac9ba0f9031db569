package otel

import (
	"context"
	"sync"
	"testing"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func TestEventEmitter_Emit(t *testing.T) {
	exp := &recordingExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	defer func() { _ = lp.Shutdown(context.Background()) }()

	emitter := NewEventEmitter(lp)
	emitter.Emit(context.Background(), AuthEvent{
		Operation: "login", UserID: "u1", Outcome: OutcomeFailure, Reason: "invalid_credentials",
	})

	exp.mu.Lock()
	defer exp.mu.Unlock()
	if len(exp.records) != 1 {
		t.Fatalf("exported %d records, want 1", len(exp.records))
	}
	rec := exp.records[0]
	if rec.Severity() != otellog.SeverityWarn {
		t.Errorf("Severity = %v, want Warn", rec.Severity())
	}
	if rec.Timestamp().IsZero() {
		t.Error("Timestamp should be set")
	}
	attrs := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{"operation": "login", "outcome": OutcomeFailure, "user_id": "u1", "reason": "invalid_credentials"}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestEventEmitter_NilProvider(t *testing.T) {
	emitter := NewEventEmitter(nil)
	emitter.Emit(context.Background(), AuthEvent{Operation: "login", Outcome: OutcomeSuccess})
}
