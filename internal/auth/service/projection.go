package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"expenses-tracker/backend/internal/cache"
	telemetry "expenses-tracker/backend/internal/telemetry/otel"
	"expenses-tracker/backend/internal/user/domain"
)

const (
	projectionPrefix     = "user:"
	defaultProjectionTTL = 30 * time.Minute
	defaultCacheTimeout  = 200 * time.Millisecond
)

// UserView is the public projection of a user. It is what GetUser returns and what is cached.
type UserView struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func newUserView(u *domain.User) *UserView {
	return &UserView{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		AvatarURL:     u.AvatarURL,
		CreatedAt:     u.CreatedAt,
	}
}

// ProjectionKey returns the cache key of the user projection for userID.
func ProjectionKey(userID string) string {
	return projectionPrefix + userID
}

// projectionCache is the read-through user cache. Failures are logged and counted, then treated as misses.
type projectionCache struct {
	cache   cache.Cache
	ttl     time.Duration
	timeout time.Duration
	log     *slog.Logger
	metrics *telemetry.Instruments
}

func newProjectionCache(c cache.Cache, ttl, timeout time.Duration, log *slog.Logger, metrics *telemetry.Instruments) *projectionCache {
	if ttl <= 0 {
		ttl = defaultProjectionTTL
	}
	if timeout <= 0 {
		timeout = defaultCacheTimeout
	}
	return &projectionCache{cache: c, ttl: ttl, timeout: timeout, log: log, metrics: metrics}
}

func (p *projectionCache) get(ctx context.Context, userID string) (*UserView, bool) {
	const op = "projection.get"
	if p.cache == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	raw, err := p.cache.Get(ctx, ProjectionKey(userID))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			p.fail(ctx, op, err)
		}
		return nil, false
	}
	var view UserView
	if err := json.Unmarshal(raw, &view); err != nil {
		p.fail(ctx, op, err)
		return nil, false
	}
	return &view, true
}

func (p *projectionCache) set(ctx context.Context, view *UserView) {
	const op = "projection.set"
	if p.cache == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		p.fail(ctx, op, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.cache.Set(ctx, ProjectionKey(view.ID), raw, p.ttl); err != nil {
		p.fail(ctx, op, err)
	}
}

func (p *projectionCache) invalidate(ctx context.Context, userID string) {
	const op = "projection.invalidate"
	if p.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.cache.Delete(ctx, ProjectionKey(userID)); err != nil {
		p.fail(ctx, op, err)
	}
}

// purge removes every cache key that contains userID.
func (p *projectionCache) purge(ctx context.Context, userID string) {
	const op = "projection.purge"
	if p.cache == nil || userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.cache.DeleteByPattern(ctx, "*"+userID+"*"); err != nil {
		p.fail(ctx, op, err)
	}
}

func (p *projectionCache) fail(ctx context.Context, op string, err error) {
	p.log.Warn("user cache unavailable, reading through", slog.String("op", op), slog.Any("error", err))
	p.metrics.RecordCacheFailure(context.WithoutCancel(ctx), op)
}
