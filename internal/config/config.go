package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string

	WebhookTolerance  time.Duration
	WebhookReplayTTL  time.Duration
	StorageTimeout    time.Duration
	IdempotencyTTL    time.Duration
	IntentLockTTL     time.Duration
	CheckoutSuccess   string
	CheckoutCancel    string
	CurrencyDefault   string
	RateLimitWindow   time.Duration
	RateLimitMax      int
	WorkerConcurrency int

	AdminJWTSecret   string
	AdminJWTIssuer   string
	AdminJWTAudience string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		StripeSecretKey:     k.String("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: k.String("STRIPE_WEBHOOK_SECRET"),
		StripeBaseURL:       valueOrDefault(k.String("STRIPE_BASE_URL"), "https://api.stripe.com"),

		WebhookTolerance:  parseDuration(k.String("WEBHOOK_TOLERANCE"), "5m"),
		WebhookReplayTTL:  parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		StorageTimeout:    parseDuration(k.String("STORAGE_TIMEOUT"), "5s"),
		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		IntentLockTTL:     parseDuration(k.String("INTENT_LOCK_TTL"), "30s"),
		CheckoutSuccess:   k.String("CHECKOUT_SUCCESS_URL"),
		CheckoutCancel:    k.String("CHECKOUT_CANCEL_URL"),
		CurrencyDefault:   valueOrDefault(k.String("CURRENCY_DEFAULT"), "usd"),
		RateLimitWindow:   parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:      int(k.Int64("RATE_LIMIT_MAX")),
		WorkerConcurrency: int(k.Int64("WORKER_CONCURRENCY")),

		AdminJWTSecret:   k.String("ADMIN_JWT_SECRET"),
		AdminJWTIssuer:   valueOrDefault(k.String("ADMIN_JWT_ISSUER"), "backend-payments"),
		AdminJWTAudience: strings.TrimSpace(k.String("ADMIN_JWT_AUDIENCE")),
	}

	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 60
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 4
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.StripeSecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is required")
	}
	if cfg.StripeWebhookSecret == "" {
		return nil, errors.New("STRIPE_WEBHOOK_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
