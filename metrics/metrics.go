package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by method, path, and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	AccessDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "access_decisions_total",
		Help:      "Access filter outcomes by route class and result (forwarded, authenticated, rejected).",
	}, []string{"class", "result"})

	AuthFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "auth_failures_total",
		Help:      "Rejected requests by verification failure kind.",
	}, []string{"kind"})

	KeyRotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "signing_key_rotations_total",
		Help:      "Signing key reload attempts by outcome.",
	}, []string{"outcome"})

	UpstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "upstream_errors_total",
		Help:      "Proxy errors by upstream route prefix.",
	}, []string{"route"})
)

// Access decision results
const (
	ResultForwarded     = "forwarded"
	ResultAuthenticated = "authenticated"
	ResultRejected      = "rejected"
)

// RecordDecision counts one access filter outcome
func RecordDecision(class, result string) {
	AccessDecisionsTotal.WithLabelValues(class, result).Inc()
}

// RecordAuthFailure counts a rejection by failure kind
func RecordAuthFailure(kind string) {
	AuthFailuresTotal.WithLabelValues(kind).Inc()
}

// RecordKeyRotation counts a key reload attempt
func RecordKeyRotation(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	KeyRotationsTotal.WithLabelValues(outcome).Inc()
}

// RecordUpstreamError counts a failed proxy round trip
func RecordUpstreamError(route string) {
	UpstreamErrorsTotal.WithLabelValues(route).Inc()
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// UnmatchedPath is the path label for requests no route or upstream claims
const UnmatchedPath = "other"

// Middleware records request metrics. The path label comes from label, which
// is called after the request was served so it can read the matched route;
// raw request paths must never be used as labels.
func Middleware(label func(*http.Request) string) func(http.Handler) http.Handler {
	if label == nil {
		label = func(*http.Request) string { return UnmatchedPath }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			duration := time.Since(start).Seconds()

			path := label(r)
			HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming upstream responses working through the wrapper
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach Hijack and deadline control on
// the underlying writer, which upgraded upstream connections need.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
