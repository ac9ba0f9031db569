// Package service implements the authentication state machine: registration, login, refresh-token
// rotation, logout and the email verification and password reset flows.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"expenses-tracker/backend/internal/cache"
	"expenses-tracker/backend/internal/email"
	"expenses-tracker/backend/internal/revocation"
	"expenses-tracker/backend/internal/security"
	telemetry "expenses-tracker/backend/internal/telemetry/otel"
	"expenses-tracker/backend/internal/user/repository"
)

const tracerName = "expenses-tracker/auth/service"

// DefaultClockSkew is added to a revoked token's remaining lifetime when it is blacklisted.
const DefaultClockSkew = 180 * time.Second

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// Config holds the service's tuning values.
type Config struct {
	ClockSkew    time.Duration
	UserCacheTTL time.Duration
	CacheTimeout time.Duration
}

// TokenPair is the result of every operation that starts or continues a session.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthService orchestrates authentication. It holds only immutable configuration and collaborators
// and is safe for concurrent use.
type AuthService struct {
	log         *slog.Logger
	uow         repository.UnitOfWork
	tokens      *security.TokenProvider
	hasher      PasswordHasher
	revoked     *revocation.Store
	projections *projectionCache
	sender      email.Sender
	metrics     *telemetry.Instruments
	events      telemetry.EventEmitter
	tracer      trace.Tracer
	clockSkew   time.Duration
}

// NewAuthService returns an AuthService with the given dependencies. metrics and events may be nil.
// projections backs the user read-through cache and may be the same Cache as the revocation store.
func NewAuthService(
	log *slog.Logger,
	uow repository.UnitOfWork,
	tokens *security.TokenProvider,
	hasher PasswordHasher,
	revoked *revocation.Store,
	projections cache.Cache,
	sender email.Sender,
	metrics *telemetry.Instruments,
	events telemetry.EventEmitter,
	cfg Config,
) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	if events == nil {
		events = telemetry.NewEventEmitter(nil)
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = DefaultClockSkew
	}
	return &AuthService{
		log:         log,
		uow:         uow,
		tokens:      tokens,
		hasher:      hasher,
		revoked:     revoked,
		projections: newProjectionCache(projections, cfg.UserCacheTTL, cfg.CacheTimeout, log, metrics),
		sender:      sender,
		metrics:     metrics,
		events:      events,
		tracer:      otel.Tracer(tracerName),
		clockSkew:   cfg.ClockSkew,
	}
}

// issuePair signs an access token and a refresh token bound to refreshJTI.
func (s *AuthService) issuePair(userID, refreshJTI string) (*TokenPair, error) {
	now := s.tokens.Now()
	access, err := s.tokens.Issue(userID, security.PurposeAccess, "", 0)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(userID, security.PurposeRefresh, refreshJTI, 0)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.tokens.TTL(security.PurposeAccess)).Truncate(time.Second),
		RefreshExpiresAt: now.Add(s.tokens.TTL(security.PurposeRefresh)).Truncate(time.Second),
	}, nil
}

// revoke blacklists jti for the rest of its signed lifetime plus clock skew.
// Already-expired tokens are skipped: the codec rejects them anyway.
func (s *AuthService) revoke(ctx context.Context, claims *security.Claims) {
	remaining := claims.ExpiresAtTime().Sub(s.tokens.Now())
	if remaining <= 0 {
		return
	}
	s.revoked.Blacklist(ctx, claims.ID, remaining+s.clockSkew)
}

// start opens a span for operation. Call the returned func with the operation's final error.
func (s *AuthService) start(ctx context.Context, operation string) (context.Context, func(userID string, err error)) {
	ctx, span := s.tracer.Start(ctx, "auth."+operation, trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, func(userID string, err error) {
		outcome := telemetry.OutcomeSuccess
		if err != nil {
			outcome = telemetry.OutcomeFailure
			span.RecordError(err)
			span.SetStatus(codes.Error, Kind(err))
		}
		if userID != "" {
			span.SetAttributes(attribute.String("user.id", userID))
		}
		span.End()
		s.metrics.RecordOperation(ctx, operation, outcome)
		s.events.Emit(ctx, telemetry.AuthEvent{
			Operation: operation,
			UserID:    userID,
			Outcome:   outcome,
			Reason:    Kind(err),
			At:        time.Now().UTC(),
		})
	}
}
