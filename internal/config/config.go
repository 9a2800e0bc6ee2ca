package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv              string
	Port                string
	RedisURL            string
	CORSAllowedOrigins  []string
	CatalogFile         string
	CatalogCacheTTL     time.Duration
	PricingStrict       bool
	IdempotencyTTL      time.Duration
	ScanRateLimitMax    int
	ScanRateLimitWindow time.Duration
	SessionTTL          time.Duration
	AdminToken          string
	MaxBodyBytes        int64
	SecurityHeaders     bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:              valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:            strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins:  splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CatalogFile:         strings.TrimSpace(k.String("CATALOG_FILE")),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "24h"),
		PricingStrict:       parseBool(k.String("PRICING_STRICT")),
		IdempotencyTTL:      parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		ScanRateLimitMax:    parseInt(k.String("SCAN_RATE_LIMIT_MAX"), 600),
		ScanRateLimitWindow: parseDuration(k.String("SCAN_RATE_LIMIT_WINDOW"), "1m"),
		SessionTTL:          parseDuration(k.String("CHECKOUT_SESSION_TTL"), "30m"),
		AdminToken:          strings.TrimSpace(k.String("ADMIN_TOKEN")),
		MaxBodyBytes:        int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 1<<20)),
		SecurityHeaders:     valueOrDefault(k.String("SECURITY_HEADERS"), "true") != "false",
	}

	if cfg.ScanRateLimitMax < 0 {
		return nil, errors.New("SCAN_RATE_LIMIT_MAX must not be negative")
	}
	if cfg.AppEnv == "production" && cfg.AdminToken == "" {
		return nil, errors.New("ADMIN_TOKEN is required in production")
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("CHECKOUT_SESSION_TTL must be positive")
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

// RedisEnabled reports whether Redis-backed features should be wired.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
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

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
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
	var errs []error
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("restore env: %w", err)
	}
	return nil
}
