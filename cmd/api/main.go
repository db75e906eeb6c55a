package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-checkout/internal/app"
	"github.com/noah-isme/backend-checkout/internal/batch"
	"github.com/noah-isme/backend-checkout/internal/catalog"
	"github.com/noah-isme/backend-checkout/internal/checkout"
	"github.com/noah-isme/backend-checkout/internal/common"
	"github.com/noah-isme/backend-checkout/internal/config"
	"github.com/noah-isme/backend-checkout/internal/health"
	"github.com/noah-isme/backend-checkout/internal/obs"
	"github.com/noah-isme/backend-checkout/internal/ratelimit"
	"github.com/noah-isme/backend-checkout/internal/receipt"
	"github.com/noah-isme/backend-checkout/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "checkout-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	deps, err := app.Build(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	limiter, err := deps.Limiter()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	var batches *batch.Handler
	if deps.Redis != nil {
		taskClient := asynq.NewClientFromRedisClient(deps.Redis)
		store := batch.NewStore(deps.Redis, cfg.BatchResultTTL)
		batches = &batch.Handler{Submitter: batch.NewSubmitter(taskClient, store, cfg.BatchMaxRetry), Store: store}
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	r := newRouter(routerConfig{
		Config:      cfg,
		Logger:      logger,
		Catalog:     deps.Catalog,
		Checkout:    deps.Checkout,
		Receipts:    deps.Receipts,
		Batches:     batches,
		Limiter:     limiter,
		Idem:        common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL},
		Checks:      deps.HealthChecks(),
		HTTPMetrics: httpMetrics,
		Tracing:     tracingEnabled,
		Pprof:       envBool("OBS_ENABLE_PPROF", false),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		health.SetReady(false)
		logger.Info().Msg("draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("catalog", deps.Catalog.Catalog().Fingerprint()).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

type routerConfig struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Catalog     *catalog.Service
	Checkout    *checkout.Service
	Receipts    receipt.Store
	Batches     *batch.Handler
	Limiter     ratelimit.Limiter
	Idem        common.Idem
	Checks      []health.Check
	HTTPMetrics *obs.HTTPMetrics
	Tracing     bool
	Pprof       bool
}

func newRouter(rc routerConfig) http.Handler {
	cfg := rc.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if rc.Tracing {
		r.Use(obs.Tracing("checkout-api"))
	}
	if rc.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: rc.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: rc.Logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"Location", "X-Total-Count", "X-Catalog-Fingerprint", "Idempotent-Replayed"},
		MaxAge:         300,
	}))

	if rc.HTTPMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if rc.Pprof {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", ""), envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")))
	}

	healthHandler := health.Handler{Checks: rc.Checks}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: rc.Catalog})
	checkoutHandler := &checkout.Handler{Svc: rc.Checkout}
	receiptHandler := &receipt.Handler{Store: rc.Receipts}
	bodyLimit := security.BodyLimit{Max: cfg.BodyLimitBytes}
	limited := ratelimit.Handler{
		Limiter: rc.Limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("checkout"),
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) { rc.Logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/catalog", func(c chi.Router) {
			c.Get("/", catalogHandler.Info)
			c.Get("/items", catalogHandler.Items)
			c.Get("/rules", catalogHandler.Rules)
			c.With(bodyLimit.Middleware).Post("/validate", catalogHandler.Validate)
		})

		v.Route("/checkout", func(c chi.Router) {
			c.Use(limited.Middleware, bodyLimit.Middleware)
			c.With(rc.Idem.Middleware).Post("/quote", checkoutHandler.Quote)
			c.Post("/batches", rc.Batches.Create)
			c.Get("/batches/{id}", rc.Batches.Get)
		})

		v.Get("/receipts/{id}", receiptHandler.Get)
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
