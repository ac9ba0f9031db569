// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"expenses-tracker/backend/internal/security"
)

// Environments recognised by APP_ENV.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Storage backends recognised by STORAGE_BACKEND.
const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageMemory   = "memory"
)

// Cache backends recognised by CACHE_BACKEND.
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// Email backends recognised by EMAIL_BACKEND.
const (
	EmailSMTP = "smtp"
	EmailLog  = "log"
)

// minProdSecretLen is the minimum HMAC key length accepted when APP_ENV=prod.
const minProdSecretLen = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment: local, dev or prod. Selects the log handler.
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// HTTPAddr is the address the HTTP API listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :8081).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// ShutdownTimeout bounds graceful shutdown (e.g. "10s").
	ShutdownTimeout string `mapstructure:"SHUTDOWN_TIMEOUT"`

	// StorageBackend selects the user store: postgres, sqlite or memory.
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	// DatabaseURL is the Postgres DSN; required when StorageBackend is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SQLitePath is the database file used when StorageBackend is sqlite.
	SQLitePath string `mapstructure:"SQLITE_PATH"`

	// CacheBackend selects the cache behind the blacklist and user projections: redis or memory.
	CacheBackend string `mapstructure:"CACHE_BACKEND"`
	// RedisURL is the redis:// URL used when CacheBackend is redis.
	RedisURL string `mapstructure:"REDIS_URL"`
	// CacheTimeout bounds each cache round-trip (e.g. "200ms"). A timeout is treated as a miss.
	CacheTimeout string `mapstructure:"CACHE_TIMEOUT"`
	// UserCacheTTL is the lifetime of cached user projections (e.g. "30m").
	UserCacheTTL string `mapstructure:"USER_CACHE_TTL"`

	// JWTSecret is the symmetric signing key. Required; at least 32 bytes in prod.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTAlgorithm is HS256, HS384 or HS512.
	JWTAlgorithm string `mapstructure:"JWT_ALGORITHM"`
	// AccessTokenTTL is the access token lifetime (e.g. "3m").
	AccessTokenTTL string `mapstructure:"ACCESS_TOKEN_TTL"`
	// RefreshTokenTTL is the refresh token lifetime (e.g. "720h").
	RefreshTokenTTL string `mapstructure:"REFRESH_TOKEN_TTL"`
	// EmailTokenTTL is the email verification token lifetime (e.g. "1h").
	EmailTokenTTL string `mapstructure:"EMAIL_TOKEN_TTL"`
	// PasswordResetTokenTTL is the password reset token lifetime (e.g. "1h").
	PasswordResetTokenTTL string `mapstructure:"PASSWORD_RESET_TOKEN_TTL"`
	// ClockSkew is added to the remaining lifetime of a revoked token when blacklisting it.
	ClockSkew string `mapstructure:"CLOCK_SKEW"`

	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// EmailBackend selects the sender: smtp or log.
	EmailBackend string `mapstructure:"EMAIL_BACKEND"`
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	EmailFrom    string `mapstructure:"EMAIL_FROM"`
	// PublicDomain is the host used to build links in outgoing emails.
	PublicDomain string `mapstructure:"PUBLIC_DOMAIN"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// CookieSecure sets the Secure attribute on auth cookies.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`

	// RateLimitEnabled turns on per-IP limits for the public auth endpoints.
	RateLimitEnabled bool `mapstructure:"RATE_LIMIT_ENABLED"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", EnvLocal)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GRPC_ADDR", ":8081")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("STORAGE_BACKEND", StoragePostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "expenses_tracker.db")
	v.SetDefault("CACHE_BACKEND", CacheRedis)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("CACHE_TIMEOUT", "200ms")
	v.SetDefault("USER_CACHE_TTL", "30m")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("ACCESS_TOKEN_TTL", "3m")
	v.SetDefault("REFRESH_TOKEN_TTL", "720h") // 30d
	v.SetDefault("EMAIL_TOKEN_TTL", "1h")
	v.SetDefault("PASSWORD_RESET_TOKEN_TTL", "1h")
	v.SetDefault("CLOCK_SKEW", "180s")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("EMAIL_BACKEND", EmailLog)
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("EMAIL_FROM", "")
	v.SetDefault("PUBLIC_DOMAIN", "localhost:8000")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "expenses-tracker-auth")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("RATE_LIMIT_ENABLED", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("config: APP_ENV must be one of local, dev, prod, got %q", c.Env)
	}
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}

	switch c.StorageBackend {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when STORAGE_BACKEND=postgres")
		}
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("config: SQLITE_PATH must be set when STORAGE_BACKEND=sqlite")
		}
	case StorageMemory:
		if c.Env == EnvProd {
			return errors.New("config: STORAGE_BACKEND=memory is not allowed when APP_ENV=prod")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.CacheBackend {
	case CacheRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when CACHE_BACKEND=redis")
		}
	case CacheMemory:
	default:
		return fmt.Errorf("config: unknown CACHE_BACKEND %q", c.CacheBackend)
	}

	switch c.EmailBackend {
	case EmailSMTP:
		if c.SMTPHost == "" || c.EmailFrom == "" {
			return errors.New("config: SMTP_HOST and EMAIL_FROM must be set when EMAIL_BACKEND=smtp")
		}
	case EmailLog:
	default:
		return fmt.Errorf("config: unknown EMAIL_BACKEND %q", c.EmailBackend)
	}

	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	if c.Env == EnvProd && len(c.JWTSecret) < minProdSecretLen {
		return fmt.Errorf("config: JWT_SECRET must be at least %d bytes when APP_ENV=prod", minProdSecretLen)
	}
	if !security.SupportedAlgorithm(c.JWTAlgorithm) {
		return fmt.Errorf("config: JWT_ALGORITHM must be HS256, HS384 or HS512, got %q", c.JWTAlgorithm)
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	return nil
}

// AccessTTL parses AccessTokenTTL. Returns 3m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.AccessTokenTTL, 3*time.Minute)
}

// RefreshTTL parses RefreshTokenTTL. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.RefreshTokenTTL, 720*time.Hour)
}

// EmailVerificationTTL parses EmailTokenTTL. Returns 1h if unset or invalid.
func (c *Config) EmailVerificationTTL() time.Duration {
	return parseDuration(c.EmailTokenTTL, time.Hour)
}

// PasswordResetTTL parses PasswordResetTokenTTL. Returns 1h if unset or invalid.
func (c *Config) PasswordResetTTL() time.Duration {
	return parseDuration(c.PasswordResetTokenTTL, time.Hour)
}

// ClockSkewGrace parses ClockSkew. Returns 180s if unset or invalid.
func (c *Config) ClockSkewGrace() time.Duration {
	return parseDuration(c.ClockSkew, 180*time.Second)
}

// CacheCallTimeout parses CacheTimeout. Returns 200ms if unset or invalid.
func (c *Config) CacheCallTimeout() time.Duration {
	return parseDuration(c.CacheTimeout, 200*time.Millisecond)
}

// UserProjectionTTL parses UserCacheTTL. Returns 30m if unset or invalid.
func (c *Config) UserProjectionTTL() time.Duration {
	return parseDuration(c.UserCacheTTL, 30*time.Minute)
}

// ShutdownGrace parses ShutdownTimeout. Returns 10s if unset or invalid.
func (c *Config) ShutdownGrace() time.Duration {
	return parseDuration(c.ShutdownTimeout, 10*time.Second)
}

// TokenConfig returns the signing configuration for security.NewTokenProvider.
func (c *Config) TokenConfig() security.TokenConfig {
	return security.TokenConfig{
		Secret:           []byte(c.JWTSecret),
		Algorithm:        c.JWTAlgorithm,
		AccessTTL:        c.AccessTTL(),
		RefreshTTL:       c.RefreshTTL(),
		VerificationTTL:  c.EmailVerificationTTL(),
		PasswordResetTTL: c.PasswordResetTTL(),
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
