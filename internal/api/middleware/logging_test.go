package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/cercabus/cercabus/internal/api/middleware"
)

// serveLogged runs one request through the Logger middleware and returns the
// decoded log line.
func serveLogged(t *testing.T, handler http.HandlerFunc, req *http.Request) map[string]interface{} {
	t.Helper()

	var buf bytes.Buffer
	wrapped := middleware.Logger(zerolog.New(&buf))(handler)
	wrapped.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLoggerRecordsRequestLine(t *testing.T) {
	body := `{"arrivals":[{"line":"27","minutes":3}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/arrivals:nearby", http.NoBody)
	req.Header.Set("User-Agent", "cercabus-assistant/1.0")

	entry := serveLogged(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}, req)

	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/v1/arrivals:nearby", entry["path"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.Equal(t, float64(len(body)), entry["bytes"])
	assert.Equal(t, "cercabus-assistant/1.0", entry["user_agent"])
	assert.NotEmpty(t, entry["duration"])
}

func TestLoggerRecordsErrorStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/stops/nearby", http.NoBody)

	entry := serveLogged(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, req)

	assert.Equal(t, float64(http.StatusServiceUnavailable), entry["status"])
}

func TestLoggerIncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.RequestID(
		middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/stops/nearby", http.NoBody))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	requestID, ok := entry["request_id"].(string)
	assert.True(t, ok)
	assert.Contains(t, requestID, "req_")
}

func TestLoggerIncludesTraceAndSpanIDs(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var buf bytes.Buffer
	handler := middleware.Tracing("cercabus-api")(
		middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/stops/nearby", http.NoBody))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	traceID, ok := entry["trace_id"].(string)
	assert.True(t, ok)
	assert.Len(t, traceID, 32)

	spanID, ok := entry["span_id"].(string)
	assert.True(t, ok)
	assert.Len(t, spanID, 16)
}

func TestLoggerImplicitStatusCode(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)

	// Writing without an explicit WriteHeader is a 200.
	entry := serveLogged(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}, req)

	assert.Equal(t, float64(http.StatusOK), entry["status"])
}
