// Package metrics exposes Prometheus metrics for subtraction runs and the
// HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbsub_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbsub_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbsub_stage_duration_seconds",
			Help:    "Duration of each subtraction stage in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage", "outcome"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbsub_runs_total",
			Help: "Completed subtraction runs by outcome.",
		},
		[]string{"outcome"},
	)

	missingFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbsub_missing_files_total",
			Help: "Required data files not found, by kind.",
		},
		[]string{"kind"},
	)

	detectorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbsub_detectors_total",
			Help: "Detectors processed by outcome.",
		},
		[]string{"outcome"},
	)

	maskedBins = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orbsub_masked_bins",
			Help:    "Bins masked for missing background coverage per detector.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500},
		},
	)

	periodDivergenceSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbsub_period_divergence_seconds",
			Help: "Measured minus assumed orbital period of the latest run.",
		},
	)

	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbsub_downloads_total",
			Help: "Archive file downloads by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		stageDurationSeconds,
		runsTotal,
		missingFilesTotal,
		detectorsTotal,
		maskedBins,
		periodDivergenceSeconds,
		downloadsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// RecordStage observes the duration of one stage.
func RecordStage(stage string, ok bool, d time.Duration) {
	stageDurationSeconds.WithLabelValues(stage, outcome(ok)).Observe(d.Seconds())
}

// RecordRun counts a finished run.
func RecordRun(ok bool) {
	runsTotal.WithLabelValues(outcome(ok)).Inc()
}

// RecordMissing counts missing files of a kind ("pos", "ctime", "cspec").
func RecordMissing(kind string, n int) {
	if n > 0 {
		missingFilesTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordDetector counts one processed detector and its masked bins.
func RecordDetector(ok bool, masked int) {
	detectorsTotal.WithLabelValues(outcome(ok)).Inc()
	if ok {
		maskedBins.Observe(float64(masked))
	}
}

// RecordPeriodDivergence sets the latest period difference.
func RecordPeriodDivergence(d float64) {
	periodDivergenceSeconds.Set(d)
}

// RecordDownloads counts downloaded and failed archive files.
func RecordDownloads(ok, failed int) {
	downloadsTotal.WithLabelValues("ok").Add(float64(ok))
	downloadsTotal.WithLabelValues("failed").Add(float64(failed))
}

// normalizeRoute maps a request path to a bounded label set so run IDs do
// not create one series each.
func normalizeRoute(path string) string {
	switch path {
	case "/", "/healthz", "/readyz", "/metrics", "/api/v1/runs":
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/runs/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/runs/{id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		code := strconv.Itoa(rw.statusCode)
		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
