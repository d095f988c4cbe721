package httpmiddleware

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Metrics returns a middleware that records per-request count and latency
// instruments, tagged with method and status class. Failed requests also
// mark the active span so traces of 5xx responses stand out.
func Metrics(mp metric.MeterProvider) (Middleware, error) {
	meter := mp.Meter("httpmiddleware")

	requests, err := meter.Int64Counter("http.server.requests",
		metric.WithDescription("Completed HTTP requests"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			attrs := metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.Int("http.status_code", rec.status),
			)
			requests.Add(r.Context(), 1, attrs)
			latency.Record(r.Context(), float64(time.Since(start).Milliseconds()), attrs)

			if rec.status >= http.StatusInternalServerError {
				span := trace.SpanFromContext(r.Context())
				span.SetAttributes(attribute.Bool("http.server_error", true))
			}
		})
	}, nil
}
