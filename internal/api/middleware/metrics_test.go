package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/cercabus/cercabus/internal/api/middleware"
)

// setupTestMeter installs a manual-reader meter provider so recorded
// measurements can be collected and inspected.
func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	return reader
}

// collectedMetricNames gathers the names of all instruments with data points.
func collectedMetricNames(t *testing.T, reader *sdkmetric.ManualReader) map[string]bool {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			names[m.Name] = true
		}
	}
	return names
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	reader := setupTestMeter(t)

	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"arrivals":[]}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/arrivals:nearby", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"arrivals":[]}`, rec.Body.String())

	names := collectedMetricNames(t, reader)
	for _, want := range []string{
		"http.server.request.duration",
		"http.server.request.total",
		"http.server.requests_in_flight",
		"http.server.response.size",
	} {
		assert.True(t, names[want], "expected %s to be recorded", want)
	}
}

func TestMetricsMiddlewarePassesErrorStatusThrough(t *testing.T) {
	setupTestMeter(t)

	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stops/nearby", http.NoBody))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsMiddlewareImplicitStatus(t *testing.T) {
	setupTestMeter(t)

	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProviderMetricsRecordRequest(t *testing.T) {
	reader := setupTestMeter(t)

	pm, err := middleware.NewProviderMetrics()
	require.NoError(t, err)

	pm.RecordRequest("emt-madrid", middleware.OpNearbyArrivals, 1200*time.Millisecond, nil)
	pm.RecordRequest("emt-madrid", middleware.OpStopArrivals, 300*time.Millisecond, context.DeadlineExceeded)

	names := collectedMetricNames(t, reader)
	assert.True(t, names["provider.request.duration"])
	assert.True(t, names["provider.request.total"])
}
