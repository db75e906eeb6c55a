// Package app builds the services shared by the API and the batch worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-checkout/internal/catalog"
	"github.com/noah-isme/backend-checkout/internal/checkout"
	"github.com/noah-isme/backend-checkout/internal/config"
	"github.com/noah-isme/backend-checkout/internal/health"
	"github.com/noah-isme/backend-checkout/internal/obs"
	"github.com/noah-isme/backend-checkout/internal/ratelimit"
	"github.com/noah-isme/backend-checkout/internal/receipt"
	"github.com/noah-isme/backend-checkout/internal/resilience"
)

// Dependencies enumerates the process-wide services. Redis and DB are nil
// when their URLs are not configured.
type Dependencies struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Catalog  *catalog.Service
	Redis    *redis.Client
	DB       *pgxpool.Pool
	Receipts receipt.Store
	Cache    *checkout.QuoteCache
	Checkout *checkout.Service
}

// Build loads the catalog and connects the optional backends.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
		resilience.MustRegisterMetrics(cfg.Obs.MetricsNamespace, nil)
	}

	cat, err := catalog.NewService(catalog.ServiceConfig{Path: cfg.CatalogPath, Logger: &logger})
	if err != nil {
		return nil, err
	}
	if obs.DomainMetricsReady() {
		obs.CatalogRules.Set(float64(cat.Catalog().RuleCount()))
	}

	deps := &Dependencies{Config: cfg, Logger: logger, Catalog: cat}
	if cfg.RedisEnabled() {
		if deps.Redis, err = NewRedis(ctx, cfg.RedisURL, logger); err != nil {
			deps.Close()
			return nil, err
		}
		breaker := resilience.NewBreaker("quote_cache", 5, 0.5, 30*time.Second).WithLogger(logger)
		deps.Cache = checkout.NewQuoteCache(deps.Redis, cfg.QuoteCacheTTL).WithBreaker(breaker)
	}
	if cfg.DatabaseEnabled() {
		if err := receipt.Migrate(cfg.DatabaseURL); err != nil {
			deps.Close()
			return nil, err
		}
		if deps.DB, err = NewPool(ctx, cfg.DatabaseURL); err != nil {
			deps.Close()
			return nil, err
		}
		deps.Receipts = receipt.NewPGStore(deps.DB)
	}

	deps.Checkout, err = checkout.NewService(checkout.Config{
		Catalog:  cat,
		Places:   cfg.RoundPlaces,
		Cache:    deps.Cache,
		Receipts: deps.Receipts,
		Logger:   logger,
	})
	if err != nil {
		deps.Close()
		return nil, err
	}
	return deps, nil
}

// NewRedis connects to url with tracing enabled.
func NewRedis(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewPool opens a pgx pool traced by obs.PGXTracer.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Limiter picks the rate limiter for the configured strategy. Without Redis
// counters stay in process memory.
func (d *Dependencies) Limiter() (ratelimit.Limiter, error) {
	if d.Redis == nil {
		return ratelimit.NewMemory(), nil
	}
	if d.Config.RateLimitStrategy == "fixed" {
		return ratelimit.NewRedisFixed(d.Redis, "rl-fixed")
	}
	return ratelimit.SlidingWindow{Client: d.Redis, Prefix: "rl:"}, nil
}

// HealthChecks lists readiness probes for the loaded catalog and every
// configured backend.
func (d *Dependencies) HealthChecks() []health.Check {
	checks := []health.Check{{
		Name: "catalog",
		Ping: func(context.Context) error {
			if d.Catalog.Catalog() == nil {
				return errors.New("catalog not loaded")
			}
			return nil
		},
	}}
	if d.Redis != nil {
		checks = append(checks, health.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return d.Redis.Ping(ctx).Err()
		}})
	}
	if d.DB != nil {
		checks = append(checks, health.Check{Name: "database", Ping: d.DB.Ping})
	}
	return checks
}

// Close releases backend connections.
func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
