package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
)

const loggerName = "expenses-tracker/auth"

// AuthEvent is one security-relevant auth outcome (login, refresh, logout, reset...).
// It never carries passwords or raw tokens.
type AuthEvent struct {
	Operation string
	UserID    string
	Outcome   string
	// Reason is the error kind for failures, empty on success.
	Reason string
	At     time.Time
}

// EventEmitter records auth events. Emit is best-effort and never fails the caller.
type EventEmitter interface {
	Emit(ctx context.Context, event AuthEvent)
}

// NewEventEmitter returns an EventEmitter that writes events as OTel log records via provider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider otellog.LoggerProvider) EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(loggerName)}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, AuthEvent) {}

type otelEmitter struct {
	logger otellog.Logger
}

func (e *otelEmitter) Emit(ctx context.Context, event AuthEvent) {
	rec := otellog.Record{}
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	rec.SetTimestamp(at)
	rec.SetEventName("auth." + event.Operation)
	rec.SetBody(otellog.StringValue(event.Operation + " " + event.Outcome))
	if event.Outcome == OutcomeFailure {
		rec.SetSeverity(otellog.SeverityWarn)
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
	}
	rec.AddAttributes(
		otellog.String("operation", event.Operation),
		otellog.String("outcome", event.Outcome),
	)
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	if event.Reason != "" {
		rec.AddAttributes(otellog.String("reason", event.Reason))
	}
	e.logger.Emit(ctx, rec)
}
