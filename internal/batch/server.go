package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-checkout/internal/resilience"
)

// ServerConfig tunes the asynq server running batch tasks.
type ServerConfig struct {
	Concurrency int
	RetryBase   time.Duration
	Logger      zerolog.Logger
}

// NewServer builds an asynq server on an existing Redis client.
func NewServer(client redis.UniversalClient, cfg ServerConfig) *asynq.Server {
	logger := cfg.Logger.With().Str("component", "asynq").Logger()
	return asynq.NewServerFromRedisClient(client, asynq.Config{
		Concurrency:    max(cfg.Concurrency, 1),
		Queues:         map[string]int{Queue: 1},
		Logger:         asynqLogger{logger},
		RetryDelayFunc: retryDelay(cfg.RetryBase),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Warn().Err(err).Str("task_type", task.Type()).Msg("task failed")
		}),
	})
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct{ l zerolog.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }

// retryDelay doubles from base on every retry with 20% jitter. A non-positive
// base means one second.
func retryDelay(base time.Duration) asynq.RetryDelayFunc {
	if base <= 0 {
		base = time.Second
	}
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		return resilience.Backoff(base, n+1, 0.2)
	}
}
