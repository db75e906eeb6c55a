// Package checkout prices baskets for API and batch callers on top of the
// pricing engine, adding caching, receipts and telemetry.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-checkout/internal/catalog"
	"github.com/noah-isme/backend-checkout/internal/obs"
	"github.com/noah-isme/backend-checkout/internal/pricing"
	"github.com/noah-isme/backend-checkout/internal/receipt"
	"github.com/noah-isme/backend-checkout/internal/resilience"
)

// QuoteRequest is a basket in scan order.
type QuoteRequest struct {
	Items       []string `json:"items" validate:"max=10000,dive,required,max=64"`
	Reference   string   `json:"reference,omitempty" validate:"omitempty,max=128"`
	SaveReceipt bool     `json:"saveReceipt,omitempty"`
}

// Quote is a priced basket.
type Quote struct {
	ID        uuid.UUID      `json:"id"`
	Catalog   string         `json:"catalog"`
	Reference string         `json:"reference,omitempty"`
	Cached    bool           `json:"cached"`
	Receipt   bool           `json:"receipt"`
	CreatedAt time.Time      `json:"createdAt"`
	Result    pricing.Result `json:"result"`
}

// Config groups Service dependencies. Cache and Receipts are optional.
type Config struct {
	Catalog  *catalog.Service
	Places   int32
	Cache    *QuoteCache
	Receipts receipt.Store
	Logger   zerolog.Logger
}

// Service prices baskets against the process catalog.
type Service struct {
	catalog  *catalog.Service
	calc     pricing.Calculator
	cache    *QuoteCache
	receipts receipt.Store
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

// NewService validates cfg and builds a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Catalog == nil || cfg.Catalog.Catalog() == nil {
		return nil, errors.New("checkout: catalog is required")
	}
	return &Service{
		catalog:  cfg.Catalog,
		calc:     pricing.NewCalculator(cfg.Places),
		cache:    cfg.Cache,
		receipts: cfg.Receipts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      cfg.Logger.With().Str("component", "checkout").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Catalog returns the catalog service quotes are priced against.
func (s *Service) Catalog() *catalog.Service { return s.catalog }

// Quote prices req. Identical baskets are served from the cache when one is
// configured; receipts are written only on request and only for fresh or
// cached successful results.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (q Quote, err error) {
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Quote")
	defer span.End()

	start := time.Now()
	source := "engine"
	defer func() {
		label := resultLabel(err)
		span.SetAttributes(
			attribute.Int("checkout.items", len(req.Items)),
			attribute.String("checkout.result", label),
			attribute.Bool("checkout.cached", q.Cached),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, label)
		}
		if obs.DomainMetricsReady() {
			obs.QuotesTotal.WithLabelValues(label).Inc()
			obs.QuoteDuration.WithLabelValues(source).Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	if err := s.validate.StructCtx(ctx, req); err != nil {
		return Quote{}, AsValidationError(err)
	}

	cat := s.catalog.Catalog()
	q = Quote{
		ID:        uuid.New(),
		Catalog:   cat.Fingerprint(),
		Reference: req.Reference,
		CreatedAt: s.now(),
	}

	key := ""
	if s.cache.enabled() && s.allKnown(cat, req.Items) {
		key = Key(cat.Fingerprint(), s.calc.Places(), pricing.NewMultiset(req.Items))
		res, ok, cerr := s.cache.Get(ctx, key)
		switch {
		case errors.Is(cerr, resilience.ErrOpenCircuit):
		case cerr != nil:
			s.log.Warn().Err(cerr).Msg("quote cache read failed")
		case ok:
			q.Result, q.Cached, source = res, true, "cache"
		}
		s.recordCache(cerr, ok)
	}

	if !q.Cached {
		res, perr := s.calc.Calculate(cat, req.Items)
		if perr != nil {
			s.log.Info().Err(perr).Int("items", len(req.Items)).Msg("quote rejected")
			return Quote{}, perr
		}
		q.Result = res
		if key != "" {
			if cerr := s.cache.Set(ctx, key, res); cerr != nil && !errors.Is(cerr, resilience.ErrOpenCircuit) {
				s.log.Warn().Err(cerr).Msg("quote cache write failed")
			}
		}
	}
	if obs.DomainMetricsReady() && !q.Cached {
		for _, line := range q.Result.Rules {
			obs.RuleFiringsTotal.WithLabelValues(line.Rule).Add(float64(line.Times))
		}
	}

	if req.SaveReceipt && s.receipts != nil {
		if err := s.saveReceipt(ctx, q, req.Items); err != nil {
			return Quote{}, err
		}
		q.Receipt = true
	}

	s.log.Info().
		Str("quote_id", q.ID.String()).
		Str("catalog", q.Catalog).
		Str("total", q.Result.Total.String()).
		Int("rules_fired", len(q.Result.Rules)).
		Bool("cached", q.Cached).
		Msg("quote priced")
	return q, nil
}

// allKnown keeps unknown ids away from the cache so the error path always
// reports the first offending scan position.
func (s *Service) allKnown(cat *catalog.Catalog, items []string) bool {
	for _, id := range items {
		if !cat.Has(id) {
			return false
		}
	}
	return true
}

func (s *Service) recordCache(err error, hit bool) {
	if !obs.DomainMetricsReady() {
		return
	}
	label := "miss"
	switch {
	case errors.Is(err, resilience.ErrOpenCircuit):
		label = "bypass"
	case err != nil:
		label = "error"
	case hit:
		label = "hit"
	}
	obs.QuoteCacheTotal.WithLabelValues(label).Inc()
}

func (s *Service) saveReceipt(ctx context.Context, q Quote, items []string) error {
	payload, err := json.Marshal(q.Result)
	if err != nil {
		return err
	}
	return s.receipts.Insert(ctx, receipt.Receipt{
		ID:                 q.ID,
		Reference:          q.Reference,
		CatalogFingerprint: q.Catalog,
		Items:              items,
		Total:              q.Result.Total,
		Result:             payload,
		CreatedAt:          q.CreatedAt,
	})
}
