// Package metrics holds the Prometheus collectors exported on /metrics.
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
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blitz_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blitz_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ScrapeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blitz_scrape_jobs_total",
			Help: "Scraping jobs by final status.",
		},
		[]string{"status"},
	)

	ScrapePagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blitz_scrape_pages_total",
			Help: "Pages fetched by the scrape runner.",
		},
		[]string{"result"}, // ok, error
	)

	ScrapeActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blitz_scrape_active_jobs",
			Help: "Scraping jobs currently running.",
		},
	)

	SQLExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blitz_sql_console_executions_total",
			Help: "Admin SQL console executions.",
		},
		[]string{"query_type", "success"},
	)

	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blitz_exports_total",
			Help: "Exports by type and final status.",
		},
		[]string{"export_type", "status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency. Routes are labelled by their mux pattern to
// keep label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveSQL counts one console execution.
func ObserveSQL(queryType string, ok bool) {
	SQLExecutionsTotal.WithLabelValues(queryType, strconv.FormatBool(ok)).Inc()
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
