package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"CATALOG_PATH":          "configs/catalog.txt",
		"PORT":                  "",
		"PRICING_ROUND_PLACES":  "",
		"REDIS_URL":             "",
		"DATABASE_URL":          "",
		"QUOTE_CACHE_TTL":       "",
		"RATE_LIMIT_MAX":        "",
		"RATE_LIMIT_STRATEGY":   "",
		"BODY_LIMIT_BYTES":      "",
		"BATCH_CONCURRENCY":     "",
		"BATCH_MAX_RETRY":       "",
		"WORKER_CONCURRENCY":    "",
		"WORKER_RETRY_BASE":     "",
		"OBS_ENABLE_TRACING":    "",
		"OBS_ENABLE_PROMETHEUS": "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, "configs/catalog.txt", cfg.CatalogPath)
	require.EqualValues(t, 2, cfg.RoundPlaces)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 10*time.Minute, cfg.QuoteCacheTTL)
	require.Equal(t, 120, cfg.RateLimitMax)
	require.Equal(t, "sliding", cfg.RateLimitStrategy)
	require.EqualValues(t, 1<<20, cfg.BodyLimitBytes)
	require.Equal(t, 4, cfg.BatchConcurrency)
	require.Equal(t, 3, cfg.BatchMaxRetry)
	require.Equal(t, 2, cfg.WorkerConcurrency)
	require.Equal(t, time.Second, cfg.WorkerRetryBase)
	require.False(t, cfg.RedisEnabled())
	require.False(t, cfg.DatabaseEnabled())
	require.True(t, cfg.Obs.MetricsEnabled)
	require.False(t, cfg.Obs.TracingEnabled)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = ":9090"
	env["PRICING_ROUND_PLACES"] = "3"
	env["REDIS_URL"] = "redis://localhost:6379/0"
	env["QUOTE_CACHE_TTL"] = "30s"
	env["RATE_LIMIT_MAX"] = "bogus"
	env["RATE_LIMIT_STRATEGY"] = "Fixed"
	env["OBS_ENABLE_TRACING"] = "yes"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.test, ,https://b.test"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.EqualValues(t, 3, cfg.RoundPlaces)
	require.True(t, cfg.RedisEnabled())
	require.Equal(t, 30*time.Second, cfg.QuoteCacheTTL)
	require.Equal(t, 120, cfg.RateLimitMax)
	require.Equal(t, "fixed", cfg.RateLimitStrategy)
	require.True(t, cfg.Obs.TracingEnabled)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSAllowedOrigins)
}

func TestLoadRejectsInvalid(t *testing.T) {
	env := baseEnv()
	env["CATALOG_PATH"] = ""
	_, err := LoadForTests(env)
	require.ErrorContains(t, err, "CATALOG_PATH")

	env = baseEnv()
	env["PRICING_ROUND_PLACES"] = "-1"
	_, err = LoadForTests(env)
	require.Error(t, err)

	env = baseEnv()
	env["PRICING_ROUND_PLACES"] = "two"
	_, err = LoadForTests(env)
	require.Error(t, err)

	env = baseEnv()
	env["RATE_LIMIT_STRATEGY"] = "token-bucket"
	_, err = LoadForTests(env)
	require.ErrorContains(t, err, "RATE_LIMIT_STRATEGY")
}

func TestLoadWorkerSettings(t *testing.T) {
	env := baseEnv()
	env["WORKER_CONCURRENCY"] = "8"
	env["WORKER_RETRY_BASE"] = "250ms"
	env["BATCH_MAX_RETRY"] = "0"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.WorkerConcurrency)
	require.Equal(t, 250*time.Millisecond, cfg.WorkerRetryBase)
	require.Equal(t, 0, cfg.BatchMaxRetry)

	env["WORKER_RETRY_BASE"] = "-1s"
	_, err = LoadForTests(env)
	require.ErrorContains(t, err, "WORKER_RETRY_BASE")

	env["WORKER_RETRY_BASE"] = ""
	env["BATCH_MAX_RETRY"] = "-2"
	_, err = LoadForTests(env)
	require.ErrorContains(t, err, "BATCH_MAX_RETRY")

	env["BATCH_MAX_RETRY"] = "many"
	_, err = LoadForTests(env)
	require.ErrorContains(t, err, "BATCH_MAX_RETRY")
}
