package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// setBaseEnv clears the environment and sets the minimum needed for Load to succeed.
func setBaseEnv(t *testing.T) {
	t.Helper()
	os.Clearenv()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/expenses?sslmode=disable")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.Env != EnvLocal {
		t.Errorf("Env = %q, want %q", cfg.Env, EnvLocal)
	}
	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8000")
	}
	if cfg.GRPCAddr != ":8081" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8081")
	}
	if cfg.StorageBackend != StoragePostgres {
		t.Errorf("StorageBackend = %q, want %q", cfg.StorageBackend, StoragePostgres)
	}
	if cfg.CacheBackend != CacheRedis {
		t.Errorf("CacheBackend = %q, want %q", cfg.CacheBackend, CacheRedis)
	}
	if cfg.JWTAlgorithm != "HS256" {
		t.Errorf("JWTAlgorithm = %q, want HS256", cfg.JWTAlgorithm)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.EmailBackend != EmailLog {
		t.Errorf("EmailBackend = %q, want %q", cfg.EmailBackend, EmailLog)
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure should default to true")
	}
	if !cfg.RateLimitEnabled {
		t.Error("RateLimitEnabled should default to true")
	}
	if got := cfg.AccessTTL(); got != 3*time.Minute {
		t.Errorf("AccessTTL() = %v, want 3m", got)
	}
	if got := cfg.RefreshTTL(); got != 30*24*time.Hour {
		t.Errorf("RefreshTTL() = %v, want 720h", got)
	}
	if got := cfg.EmailVerificationTTL(); got != time.Hour {
		t.Errorf("EmailVerificationTTL() = %v, want 1h", got)
	}
	if got := cfg.PasswordResetTTL(); got != time.Hour {
		t.Errorf("PasswordResetTTL() = %v, want 1h", got)
	}
	if got := cfg.ClockSkewGrace(); got != 180*time.Second {
		t.Errorf("ClockSkewGrace() = %v, want 180s", got)
	}
	if got := cfg.CacheCallTimeout(); got != 200*time.Millisecond {
		t.Errorf("CacheCallTimeout() = %v, want 200ms", got)
	}
	if got := cfg.UserProjectionTTL(); got != 30*time.Minute {
		t.Errorf("UserProjectionTTL() = %v, want 30m", got)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/auth.db")
	t.Setenv("ACCESS_TOKEN_TTL", "10m")
	t.Setenv("JWT_ALGORITHM", "HS512")
	t.Setenv("BCRYPT_COST", "14")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.StorageBackend != StorageSQLite || cfg.SQLitePath != "/tmp/auth.db" {
		t.Errorf("storage = %q %q, want sqlite /tmp/auth.db", cfg.StorageBackend, cfg.SQLitePath)
	}
	if got := cfg.AccessTTL(); got != 10*time.Minute {
		t.Errorf("AccessTTL() = %v, want 10m", got)
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure = true, want false")
	}
	if cfg.RateLimitEnabled {
		t.Error("RateLimitEnabled = true, want false")
	}
	tc := cfg.TokenConfig()
	if tc.Algorithm != "HS512" || string(tc.Secret) != "test-secret" || tc.AccessTTL != 10*time.Minute {
		t.Errorf("TokenConfig() = %+v", tc)
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REFRESH_TOKEN_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.RefreshTTL(); got != 720*time.Hour {
		t.Errorf("RefreshTTL() = %v, want fallback 720h", got)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET must be set"},
		{"short prod secret", map[string]string{"APP_ENV": "prod"}, "at least 32 bytes"},
		{"unknown env", map[string]string{"APP_ENV": "staging"}, "APP_ENV"},
		{"unsupported algorithm", map[string]string{"JWT_ALGORITHM": "RS256"}, "JWT_ALGORITHM"},
		{"postgres without dsn", map[string]string{"DATABASE_URL": ""}, "DATABASE_URL"},
		{"unknown storage", map[string]string{"STORAGE_BACKEND": "mysql"}, "STORAGE_BACKEND"},
		{"memory storage in prod", map[string]string{
			"APP_ENV": "prod", "STORAGE_BACKEND": "memory",
			"JWT_SECRET": strings.Repeat("s", 32),
		}, "not allowed"},
		{"unknown cache", map[string]string{"CACHE_BACKEND": "memcached"}, "CACHE_BACKEND"},
		{"smtp without sender", map[string]string{"EMAIL_BACKEND": "smtp"}, "EMAIL_FROM"},
		{"unknown email backend", map[string]string{"EMAIL_BACKEND": "ses"}, "EMAIL_BACKEND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("Load: expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLoad_ProdWithLongSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_SECRET", strings.Repeat("k", 32))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != EnvProd {
		t.Errorf("Env = %q, want prod", cfg.Env)
	}
}

func TestLoad_BcryptCost(t *testing.T) {
	tests := []struct {
		name    string
		cost    string
		wantErr bool
	}{
		{"valid min", "4", false},
		{"valid max", "31", false},
		{"too low", "3", true},
		{"too high", "32", true},
		{"unset uses default", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			if tt.cost != "" {
				t.Setenv("BCRYPT_COST", tt.cost)
			}
			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
