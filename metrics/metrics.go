// Package metrics holds the Prometheus collectors for the HTTP surface and
// the compliance operations.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/compliance-engine/core"
)

const namespace = "compliance_engine"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route"},
	)

	// BankingOperations counts bank/apply attempts by outcome.
	BankingOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "banking",
			Name:      "operations_total",
			Help:      "Bank and apply operations by outcome.",
		},
		[]string{"kind", "result"},
	)

	// PoolOperations counts pool creation attempts by outcome.
	PoolOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pooling",
			Name:      "operations_total",
			Help:      "Pool creation attempts by outcome.",
		},
		[]string{"result"},
	)

	// CBComputations counts compliance balance computations by outcome.
	CBComputations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "computations_total",
			Help:      "Compliance balance computations by outcome.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		BankingOperations,
		PoolOperations,
		CBComputations,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Outcome classifies an operation error into a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case core.IsNotFound(err):
		return "not_found"
	case core.IsClientError(err):
		return "rejected"
	default:
		return "error"
	}
}

// RecordBanking records a bank or apply attempt.
func RecordBanking(kind core.EntryKind, err error) {
	BankingOperations.WithLabelValues(string(kind), Outcome(err)).Inc()
}

// RecordPool records a pool creation attempt.
func RecordPool(err error) {
	PoolOperations.WithLabelValues(Outcome(err)).Inc()
}

// RecordComputation records a CB computation.
func RecordComputation(err error) {
	CBComputations.WithLabelValues(Outcome(err)).Inc()
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Routes are labelled with their chi pattern so path parameters do not
// explode label cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
