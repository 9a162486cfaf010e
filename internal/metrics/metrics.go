// Package metrics provides Prometheus instrumentation for safepilot.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProviderCalls counts upstream calls by provider and outcome status.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safepilot_provider_calls_total",
		Help: "Upstream provider calls by outcome",
	}, []string{"provider", "status"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "safepilot_provider_latency_seconds",
		Help:    "Upstream provider call latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
	}, []string{"provider"})

	// StaticFallbacks counts lookups that exhausted every live source.
	StaticFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safepilot_static_fallbacks_total",
		Help: "Lookups answered from static fallback values",
	}, []string{"lookup"})

	PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "safepilot_pipeline_duration_seconds",
		Help:    "Chat pipeline duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"intent"})

	PipelineFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safepilot_pipeline_failures_total",
		Help: "Chat requests recovered at the outer boundary",
	})

	FormatterFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safepilot_formatter_fallbacks_total",
		Help: "Replies built from deterministic templates after formatter failure",
	})

	IntentsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safepilot_intents_built_total",
		Help: "Transaction intents built by kind",
	}, []string{"kind"})

	TxOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safepilot_tx_outcomes_total",
		Help: "Transaction outcomes by classified status",
	}, []string{"status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safepilot_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "safepilot_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "path"})
)

// ObserveProvider records one upstream call.
func ObserveProvider(provider, status string, elapsed time.Duration) {
	ProviderCalls.WithLabelValues(provider, status).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency keyed by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
