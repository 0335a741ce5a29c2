package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/cercabus/cercabus/internal/api/middleware"

// Provider operations recorded against the transit provider. These become
// the provider.operation attribute, so dashboards can split the slow
// arrivals fan-out from the cheap single-stop lookup.
const (
	OpNearbyArrivals = "nearby_arrivals"
	OpStopArrivals   = "stop_arrivals"
	OpNearbyStops    = "nearby_stops"
)

// Metrics holds the HTTP server instruments. Histogram buckets for the
// duration instrument are pinned by the telemetry package's views.
type Metrics struct {
	duration metric.Float64Histogram
	total    metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	size     metric.Int64Histogram
}

// NewMetrics builds the server-side instruments on the global meter.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}

	var err error
	if m.duration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.total, err = meter.Int64Counter(
		"http.server.request.total",
		metric.WithDescription("Total number of HTTP server requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter(
		"http.server.requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.size, err = meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("Size of HTTP server responses in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// Middleware records one measurement set per request.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.URL.Path),
			}
			m.inFlight.Add(r.Context(), 1, metric.WithAttributes(attrs...))
			defer m.inFlight.Add(r.Context(), -1, metric.WithAttributes(attrs...))

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			attrs = append(attrs, attribute.String("http.status_code", strconv.Itoa(ww.Status())))
			if ww.Status() >= 400 {
				attrs = append(attrs, attribute.Bool("error", true))
			}

			opts := metric.WithAttributes(attrs...)
			m.duration.Record(r.Context(), time.Since(start).Seconds(), opts)
			m.total.Add(r.Context(), 1, opts)
			m.size.Record(r.Context(), int64(ww.BytesWritten()), opts)
		})
	}
}

// ProviderMetrics instruments calls to the transit provider.
type ProviderMetrics struct {
	duration metric.Float64Histogram
	total    metric.Int64Counter
}

// NewProviderMetrics builds the provider-side instruments on the global meter.
func NewProviderMetrics() (*ProviderMetrics, error) {
	meter := otel.Meter(meterName)
	m := &ProviderMetrics{}

	var err error
	if m.duration, err = meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of transit provider requests in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.total, err = meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of transit provider requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRequest records one provider call. The request's context may already
// be cancelled by the time the measurement lands, so recording uses a
// detached context.
func (m *ProviderMetrics) RecordRequest(provider, operation string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	ctx := context.Background()
	opts := metric.WithAttributes(attrs...)
	m.duration.Record(ctx, duration.Seconds(), opts)
	m.total.Add(ctx, 1, opts)
}
