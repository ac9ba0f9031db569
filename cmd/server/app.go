package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"expenses-tracker/backend/internal/auth/handler"
	"expenses-tracker/backend/internal/auth/service"
	"expenses-tracker/backend/internal/cache"
	"expenses-tracker/backend/internal/config"
	"expenses-tracker/backend/internal/db"
	"expenses-tracker/backend/internal/db/migrate"
	"expenses-tracker/backend/internal/email"
	"expenses-tracker/backend/internal/health"
	"expenses-tracker/backend/internal/ratelimit"
	"expenses-tracker/backend/internal/revocation"
	"expenses-tracker/backend/internal/security"
	telemetry "expenses-tracker/backend/internal/telemetry/otel"
	"expenses-tracker/backend/internal/user/repository"
)

// app holds the wired process dependencies.
type app struct {
	router  http.Handler
	health  *health.Checker
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	providers, err := telemetry.NewProviders(ctx, telemetry.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	a.closers = append(a.closers, providers.Shutdown)
	metrics, err := telemetry.NewInstruments(providers.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	events := telemetry.NewEventEmitter(providers.LoggerProvider)

	uow, dbPinger, err := a.openStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	store, cachePinger, err := a.openCache(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	tokens, err := security.NewTokenProvider(cfg.TokenConfig())
	if err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}

	links := email.Links{Domain: cfg.PublicDomain}
	var sender email.Sender = email.NewLogSender(links, log)
	if cfg.EmailBackend == config.EmailSMTP {
		sender, err = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		}, links, log)
		if err != nil {
			return nil, fmt.Errorf("email: %w", err)
		}
	}

	svc := service.NewAuthService(
		log,
		uow,
		tokens,
		security.NewHasher(cfg.BcryptCost),
		revocation.NewStore(store, cfg.CacheCallTimeout(), log, metrics),
		store,
		sender,
		metrics,
		events,
		service.Config{
			ClockSkew:    cfg.ClockSkewGrace(),
			UserCacheTTL: cfg.UserProjectionTTL(),
			CacheTimeout: cfg.CacheCallTimeout(),
		},
	)

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.New(store, nil, cfg.CacheCallTimeout(), log, metrics)
	}

	// The cache is best effort: losing it degrades revocation and limits but keeps the service ready.
	a.health = health.NewChecker(log,
		map[string]health.Pinger{"database": dbPinger},
		map[string]health.Pinger{"cache": cachePinger},
	)
	a.router = handler.NewRouter(handler.NewAuthHandler(svc, log, cfg.CookieSecure), log, a.health, limiter)
	return a, nil
}

func (a *app) openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (repository.UnitOfWork, health.Pinger, error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		log.Warn("using in-memory user store; data is lost on restart")
		return repository.NewMemoryUnitOfWork(), nil, nil
	case config.StorageSQLite:
		if err := runMigrations(migrate.BackendSQLite, cfg.SQLitePath); err != nil {
			return nil, nil, err
		}
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		a.closers = append(a.closers, closeDB(conn))
		return repository.NewSQLiteUnitOfWork(conn), conn, nil
	default:
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, closeDB(conn))
		return repository.NewPostgresUnitOfWork(conn), conn, nil
	}
}

// openCache never fails on an unreachable Redis: the client reconnects on later calls and every
// consumer treats errors as misses.
func (a *app) openCache(ctx context.Context, cfg *config.Config, log *slog.Logger) (cache.Cache, health.Pinger, error) {
	if cfg.CacheBackend == config.CacheMemory {
		return cache.NewMemoryCache(nil), nil, nil
	}
	client, err := cache.OpenRedis(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	pinger := redisPinger(client)
	pctx, cancel := context.WithTimeout(ctx, health.DefaultTimeout)
	defer cancel()
	if err := pinger.PingContext(pctx); err != nil {
		log.Warn("redis unreachable at startup, continuing without cache", slog.Any("error", err))
	}
	return cache.NewRedisCache(client), pinger, nil
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func runMigrations(backend, target string) error {
	if err := migrate.Run(backend, target, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", backend, err)
	}
	return nil
}

func closeDB(conn *sql.DB) func(context.Context) error {
	return func(context.Context) error { return conn.Close() }
}

func redisPinger(client *redis.Client) health.Pinger {
	return health.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
}
