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
	AppEnv             string
	Port               string
	CatalogPath        string
	RoundPlaces        int32
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	QuoteCacheTTL      time.Duration
	IdempotencyTTL     time.Duration
	RateLimitMax       int
	RateLimitWindow    time.Duration
	RateLimitStrategy  string
	BodyLimitBytes     int64
	BatchConcurrency   int
	BatchResultTTL     time.Duration
	BatchMaxRetry      int
	WorkerConcurrency  int
	WorkerRetryBase    time.Duration
	Obs                ObsConfig
}

// ObsConfig groups logging, metrics and tracing switches.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	places, err := parseInt(k.String("PRICING_ROUND_PLACES"), 2)
	if err != nil {
		return nil, fmt.Errorf("PRICING_ROUND_PLACES: %w", err)
	}
	bodyLimit, err := parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)
	if err != nil {
		return nil, fmt.Errorf("BODY_LIMIT_BYTES: %w", err)
	}
	maxRetry, err := parseInt(k.String("BATCH_MAX_RETRY"), 3)
	if err != nil {
		return nil, fmt.Errorf("BATCH_MAX_RETRY: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		CatalogPath:        strings.TrimSpace(k.String("CATALOG_PATH")),
		RoundPlaces:        int32(places),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		QuoteCacheTTL:      parseDuration(k.String("QUOTE_CACHE_TTL"), "10m"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitMax:       intOrDefault(k.String("RATE_LIMIT_MAX"), 120),
		RateLimitWindow:    parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitStrategy:  strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), "sliding")),
		BodyLimitBytes:     int64(bodyLimit),
		BatchConcurrency:   intOrDefault(k.String("BATCH_CONCURRENCY"), 4),
		BatchResultTTL:     parseDuration(k.String("BATCH_RESULT_TTL"), "1h"),
		BatchMaxRetry:      maxRetry,
		WorkerConcurrency:  intOrDefault(k.String("WORKER_CONCURRENCY"), 2),
		WorkerRetryBase:    parseDuration(k.String("WORKER_RETRY_BASE"), "1s"),
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "checkout"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		},
	}

	if cfg.CatalogPath == "" {
		return nil, errors.New("CATALOG_PATH is required")
	}
	if cfg.RoundPlaces < 0 {
		return nil, errors.New("PRICING_ROUND_PLACES must not be negative")
	}
	if cfg.RateLimitStrategy != "sliding" && cfg.RateLimitStrategy != "fixed" {
		return nil, fmt.Errorf("RATE_LIMIT_STRATEGY must be sliding or fixed, got %q", cfg.RateLimitStrategy)
	}
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.BatchMaxRetry < 0 {
		return nil, errors.New("BATCH_MAX_RETRY must not be negative")
	}
	if cfg.WorkerRetryBase <= 0 {
		return nil, errors.New("WORKER_RETRY_BASE must be positive")
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

// RedisEnabled reports whether a Redis URL was configured.
func (c *Config) RedisEnabled() bool { return c.RedisURL != "" }

// DatabaseEnabled reports whether a database URL was configured.
func (c *Config) DatabaseEnabled() bool { return c.DatabaseURL != "" }

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
		return strings.TrimSpace(value)
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

func parseInt(value string, fallback int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func intOrDefault(value string, fallback int) int {
	n, err := parseInt(value, fallback)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
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
