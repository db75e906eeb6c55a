package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/backend-checkout/internal/checkout"
	"github.com/noah-isme/backend-checkout/internal/common"
	"github.com/noah-isme/backend-checkout/internal/lock"
	"github.com/noah-isme/backend-checkout/internal/obs"
)

var (
	counterOnce sync.Once
	txCounter   metric.Int64Counter
)

// transactions is the OpenTelemetry twin of obs.BatchTransactionsTotal for
// deployments exporting OTLP metrics.
func transactions() metric.Int64Counter {
	counterOnce.Do(func() {
		c, err := otel.Meter("checkout.batch").Int64Counter("checkout.batch.transactions",
			metric.WithDescription("Transactions priced by the batch worker."))
		if err != nil {
			c = noop.Int64Counter{}
		}
		txCounter = c
	})
	return txCounter
}

// Quoter prices one basket.
type Quoter interface {
	Quote(ctx context.Context, req checkout.QuoteRequest) (checkout.Quote, error)
}

// Processor handles TypeQuoteBatch tasks.
type Processor struct {
	Quoter      Quoter
	Store       *Store
	Locker      lock.Locker
	LockTTL     time.Duration
	Concurrency int
	Logger      zerolog.Logger
}

// Register mounts the processor on mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeQuoteBatch, p.ProcessTask)
}

// ProcessTask prices every transaction of the batch in the task payload.
// Malformed payloads are not retried; a batch already being priced by another
// worker is retried later.
func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var pl payload
	if err := json.Unmarshal(t.Payload(), &pl); err != nil {
		return fmt.Errorf("batch: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if pl.BatchID == "" {
		return fmt.Errorf("batch: payload without id: %w", asynq.SkipRetry)
	}
	ttl := p.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return p.Locker.TryWithLock(ctx, "lock:batch:"+pl.BatchID, ttl, func(ctx context.Context) error {
		return p.run(ctx, pl)
	})
}

func (p *Processor) run(ctx context.Context, pl payload) error {
	log := p.Logger.With().Str("batch_id", pl.BatchID).Logger()
	b, err := p.Store.Load(ctx, pl.BatchID)
	switch {
	case errors.Is(err, ErrNotFound):
		b = Batch{ID: pl.BatchID, Transactions: len(pl.Transactions)}
	case err != nil:
		return err
	case b.Status == StatusDone:
		log.Debug().Msg("batch already priced")
		return nil
	}

	b.Status = StatusRunning
	if err := p.Store.Save(ctx, b); err != nil {
		return err
	}

	start := time.Now()
	outcomes := make([]Outcome, len(pl.Transactions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Concurrency, 1))
	for i, tx := range pl.Transactions {
		g.Go(func() error {
			outcomes[i] = p.price(gctx, i, tx)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	b.Outcomes = outcomes
	b.Succeeded = lo.CountBy(outcomes, func(o Outcome) bool { return o.Error == nil })
	b.Failed = len(outcomes) - b.Succeeded
	b.Status = StatusDone
	if err := p.Store.Save(ctx, b); err != nil {
		return err
	}
	log.Info().
		Int("transactions", len(outcomes)).
		Int("succeeded", b.Succeeded).
		Int("failed", b.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("batch priced")
	return nil
}

func (p *Processor) price(ctx context.Context, i int, tx Transaction) Outcome {
	out := Outcome{Index: i, Reference: tx.Reference}
	q, err := p.Quoter.Quote(ctx, checkout.QuoteRequest{
		Items:       tx.Items,
		Reference:   tx.Reference,
		SaveReceipt: tx.SaveReceipt,
	})
	result := "ok"
	if err != nil {
		appErr := checkout.Classify(err)
		out.Error = &common.ErrorBody{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
		result = "error"
	} else {
		out.Quote = &q
	}
	if obs.DomainMetricsReady() {
		obs.BatchTransactionsTotal.WithLabelValues(result).Inc()
	}
	transactions().Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	return out
}
