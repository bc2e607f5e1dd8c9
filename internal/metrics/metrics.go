// Package metrics provides Prometheus metrics for the Folio server.
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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folio_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_remote_requests_total",
			Help: "Requests made to the remote content store",
		},
		[]string{"op", "result"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folio_remote_request_duration_seconds",
			Help:    "Remote content store request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	navigationRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_navigation_refreshes_total",
			Help: "Navigation refreshes by outcome (draft, cached, fetched, error)",
		},
		[]string{"outcome"},
	)

	draftsSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "folio_drafts_saved_total",
			Help: "Structural drafts written",
		},
	)

	commitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_commits_total",
			Help: "Navigation and page commits by result",
		},
		[]string{"kind", "result"},
	)

	pollFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "folio_content_poll_failures_total",
			Help: "Background content poll fetches that failed",
		},
	)

	branchConfirmAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folio_branch_confirm_attempts",
			Help:    "Checks needed to observe a branch create or delete",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
		[]string{"op", "result"},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)

	sseClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "folio_sse_clients",
			Help: "Connected SSE clients",
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRemote records one remote store call.
func RecordRemote(op string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	remoteRequestsTotal.WithLabelValues(op, result).Inc()
	remoteRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRefresh records how a navigation refresh was satisfied.
func RecordRefresh(outcome string) {
	navigationRefreshesTotal.WithLabelValues(outcome).Inc()
}

// RecordDraftSaved counts one draft write.
func RecordDraftSaved() {
	draftsSavedTotal.Inc()
}

// RecordCommit records a commit attempt. kind is "navigation" or "page".
func RecordCommit(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	commitsTotal.WithLabelValues(kind, result).Inc()
}

// RecordPollFailure counts a failed background fetch.
func RecordPollFailure() {
	pollFailuresTotal.Inc()
}

// RecordBranchConfirm records how many checks a branch confirmation took.
func RecordBranchConfirm(op string, attempts int, err error) {
	result := "confirmed"
	if err != nil {
		result = "timeout"
	}
	branchConfirmAttempts.WithLabelValues(op, result).Observe(float64(attempts))
}

// RecordSSEEvent counts a published event.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// SetSSEClients records the number of connected SSE clients.
func SetSSEClients(n int) {
	sseClients.Set(float64(n))
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request counts and durations labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
