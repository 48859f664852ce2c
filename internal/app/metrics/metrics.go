// Package metrics exposes Prometheus instrumentation for the lifecycle engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's collectors.
type Metrics struct {
	registry *prometheus.Registry

	ChallengesIssued prometheus.Counter
	Deactivations    prometheus.Counter
	Confirmations    prometheus.Counter
	Reactivations    prometheus.Counter
	SweepErrors      prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers the engine's collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ChallengesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_challenges_issued_total",
			Help: "Validation challenges issued by the sweeper.",
		}),
		Deactivations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_deactivations_total",
			Help: "Listings deactivated after an unanswered challenge.",
		}),
		Confirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_confirmations_total",
			Help: "Successful owner confirmations.",
		}),
		Reactivations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_reactivations_total",
			Help: "Owner-initiated reactivations.",
		}),
		SweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_sweep_errors_total",
			Help: "Per-listing failures during validation sweeps.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		m.ChallengesIssued,
		m.Deactivations,
		m.Confirmations,
		m.Reactivations,
		m.SweepErrors,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency, labeled with the mux route
// template rather than the raw path.
func (m *Metrics) Middleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if template, err := current.GetPathTemplate(); err == nil {
					route = template
				}
			}
			m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
			m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
