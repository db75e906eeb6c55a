package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-checkout/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("checkout", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/health/ready"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}

	total := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/health/ready", "204"))
	if total != 1 {
		t.Fatalf("expected counter to be 1, got %v", total)
	}
	if samples := testutil.CollectAndCount(metrics.Latency); samples == 0 {
		t.Fatalf("expected histogram sample")
	}
	if samples := testutil.CollectAndCount(metrics.ResponseBytes); samples == 0 {
		t.Fatalf("expected response size sample")
	}
	if val := testutil.ToFloat64(metrics.InFlight); val != 0 {
		t.Fatalf("expected no in-flight requests, got %v", val)
	}
}

func TestHTTPMetricsUseChiPattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("checkout", nil, registry)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/v1/checkout/batches/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/checkout/batches/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/checkout/batches/def", nil))

	got := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/api/v1/checkout/batches/{id}", "200"))
	require.Equal(t, 2.0, got)
}

func TestRequestLoggerWritesRoute(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json")

	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Get("/api/v1/catalog/items", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/items?page=2", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, "/api/v1/catalog/items", entry["route"])
	require.EqualValues(t, http.StatusTeapot, entry["status"])
	require.Equal(t, "203.0.113.9", entry["client_ip"])
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{1, 2.5, 10}, obs.ParseBucketsCSV("1, 2.5,,x,-3,10"))
	require.Equal(t, []float64{0.5, 5, 50}, obs.ParseBucketsCSV("50,5,0.5,5"))
	require.Nil(t, obs.ParseBucketsCSV(" "))
}

func TestHTTPMetricsReuseRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("checkout", nil, registry)
	second := obs.NewHTTPMetrics("checkout", nil, registry)
	second.Requests.WithLabelValues(http.MethodPost, "/api/v1/checkout/quote", "200").Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(first.Requests.WithLabelValues(http.MethodPost, "/api/v1/checkout/quote", "200")))
}
