package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuotesTotal counts priced baskets by outcome.
	QuotesTotal *prometheus.CounterVec
	// QuoteDuration records pricing latency in milliseconds.
	QuoteDuration *prometheus.HistogramVec
	// RuleFiringsTotal counts how often each pricing rule fired.
	RuleFiringsTotal *prometheus.CounterVec
	// QuoteCacheTotal counts quote cache lookups by result.
	QuoteCacheTotal *prometheus.CounterVec
	// BatchTransactionsTotal counts transactions priced by the batch worker.
	BatchTransactionsTotal *prometheus.CounterVec
	// CatalogRules reports the number of rules in the loaded catalog.
	CatalogRules prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers checkout Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Count of basket pricing outcomes.",
		}, []string{"result"})
		QuoteDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_duration_ms",
			Help:      "Latency for pricing a basket in milliseconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		}, []string{"source"})
		RuleFiringsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_firings_total",
			Help:      "Number of times each pricing rule fired.",
		}, []string{"rule"})
		QuoteCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_cache_total",
			Help:      "Quote cache lookups by result.",
		}, []string{"result"})
		BatchTransactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_transactions_total",
			Help:      "Transactions priced by the batch worker by outcome.",
		}, []string{"result"})
		CatalogRules = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_rules",
			Help:      "Number of pricing rules in the loaded catalog.",
		})

		QuotesTotal = registerOrReuse(reg, QuotesTotal)
		QuoteDuration = registerOrReuse(reg, QuoteDuration)
		RuleFiringsTotal = registerOrReuse(reg, RuleFiringsTotal)
		QuoteCacheTotal = registerOrReuse(reg, QuoteCacheTotal)
		BatchTransactionsTotal = registerOrReuse(reg, BatchTransactionsTotal)
		CatalogRules = registerOrReuse(reg, CatalogRules)
	})
}

// DomainMetricsReady reports whether MustRegisterDomainMetrics has run.
func DomainMetricsReady() bool { return QuotesTotal != nil }
