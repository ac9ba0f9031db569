package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Outcome values recorded on auth.operations.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

const meterName = "expenses-tracker/auth"

// Instruments holds the counters recorded by the auth service, the revocation store and the rate limiter.
// A nil *Instruments records nothing.
type Instruments struct {
	operations    otelmetric.Int64Counter
	cacheFailures otelmetric.Int64Counter
	rateLimited   otelmetric.Int64Counter
}

// NewInstruments registers the counters on mp.
func NewInstruments(mp otelmetric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(meterName)
	ops, err := meter.Int64Counter("auth.operations",
		otelmetric.WithDescription("Authentication operations by name and outcome."),
		otelmetric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}
	cacheFailures, err := meter.Int64Counter("cache.failures",
		otelmetric.WithDescription("Cache calls that failed and were treated as a miss."),
		otelmetric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	rateLimited, err := meter.Int64Counter("auth.rate_limited",
		otelmetric.WithDescription("Requests rejected by the per-IP rate limiter."),
		otelmetric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	return &Instruments{operations: ops, cacheFailures: cacheFailures, rateLimited: rateLimited}, nil
}

// RecordOperation counts one auth operation.
func (i *Instruments) RecordOperation(ctx context.Context, operation, outcome string) {
	if i == nil {
		return
	}
	i.operations.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RecordCacheFailure counts one swallowed cache failure.
func (i *Instruments) RecordCacheFailure(ctx context.Context, operation string) {
	if i == nil {
		return
	}
	i.cacheFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("operation", operation)))
}

// RecordRateLimited counts one request rejected in scope.
func (i *Instruments) RecordRateLimited(ctx context.Context, scope string) {
	if i == nil {
		return
	}
	i.rateLimited.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("scope", scope)))
}
