package obs_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-checkout/internal/obs"
)

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("checkout_test", registry)
	obs.MustRegisterDomainMetrics("checkout_test", registry)
	require.True(t, obs.DomainMetricsReady())

	before := testutil.ToFloat64(obs.QuotesTotal.WithLabelValues("ok"))
	obs.QuotesTotal.WithLabelValues("ok").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(obs.QuotesTotal.WithLabelValues("ok")))

	obs.CatalogRules.Set(3)
	require.Equal(t, 3.0, testutil.ToFloat64(obs.CatalogRules))
}
