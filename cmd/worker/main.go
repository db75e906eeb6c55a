package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-checkout/internal/app"
	"github.com/noah-isme/backend-checkout/internal/batch"
	"github.com/noah-isme/backend-checkout/internal/config"
	"github.com/noah-isme/backend-checkout/internal/lock"
	"github.com/noah-isme/backend-checkout/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()
	if !cfg.RedisEnabled() {
		logger.Fatal().Msg("REDIS_URL is required for the batch worker")
	}

	if cfg.Obs.TracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "checkout-worker",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	processor := &batch.Processor{
		Quoter:      deps.Checkout,
		Store:       batch.NewStore(deps.Redis, cfg.BatchResultTTL),
		Locker:      lock.Locker{R: deps.Redis, RetryBackoff: 100 * time.Millisecond},
		Concurrency: cfg.BatchConcurrency,
		Logger:      logger,
	}
	mux := asynq.NewServeMux()
	processor.Register(mux)

	srv := batch.NewServer(deps.Redis, batch.ServerConfig{
		Concurrency: cfg.WorkerConcurrency,
		RetryBase:   cfg.WorkerRetryBase,
		Logger:      logger,
	})
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Str("queue", batch.Queue).Int("concurrency", cfg.WorkerConcurrency).Msg("worker started")

	<-ctx.Done()
	logger.Info().Msg("worker draining")
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
