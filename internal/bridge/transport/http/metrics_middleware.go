package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twilio_bridge",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status_code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "twilio_bridge",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	webhookRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twilio_bridge",
			Name:      "webhook_requests_total",
			Help:      "Total Twilio webhook callbacks received, by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"}, // outcome: ok, invalid, forbidden, unknown_tenant, duplicate, error
	)

	signatureFailuresCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "twilio_bridge",
			Name:      "signature_validation_failures_total",
			Help:      "Total webhook requests rejected for a missing or invalid X-Twilio-Signature.",
		},
	)
)

// PrometheusMetricsMiddleware is a chi middleware recording request counts
// and durations per route pattern.
func PrometheusMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = "unknown"
		}

		statusCode := ww.Status()
		if statusCode == 0 {
			statusCode = http.StatusOK
		}

		httpRequestDurationSeconds.WithLabelValues(r.Method, path).Observe(duration.Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(statusCode)).Inc()
	})
}
