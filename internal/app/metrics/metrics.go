package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "backoffice",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "backoffice",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ruleRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "quality",
			Name:      "rule_runs_total",
			Help:      "Total number of data quality rule runs.",
		},
		[]string{"check", "status"},
	)

	ruleRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "backoffice",
			Subsystem: "quality",
			Name:      "rule_run_duration_seconds",
			Help:      "Duration of data quality rule runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"check"},
	)

	violationsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "quality",
			Name:      "violations_total",
			Help:      "Total number of data quality violations raised.",
		},
		[]string{"severity"},
	)

	alertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "alerting",
			Name:      "alerts_total",
			Help:      "Total number of alerts dispatched, by sink outcome.",
		},
		[]string{"sink", "outcome"},
	)

	pipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "etl",
			Name:      "pipeline_runs_total",
			Help:      "Total number of ETL pipeline runs.",
		},
		[]string{"status"},
	)

	pipelineRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "etl",
			Name:      "pipeline_rows_total",
			Help:      "Rows moved by ETL pipelines, by stage.",
		},
		[]string{"stage"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ruleRuns,
		ruleRunDuration,
		violationsRaised,
		alertsSent,
		pipelineRuns,
		pipelineRows,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
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

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordRuleRun records a completed data quality rule run.
func RecordRuleRun(check, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	ruleRuns.WithLabelValues(check, status).Inc()
	ruleRunDuration.WithLabelValues(check).Observe(duration.Seconds())
}

// RecordViolations records raised violations by severity.
func RecordViolations(severity string, count int) {
	if count <= 0 {
		return
	}
	violationsRaised.WithLabelValues(severity).Add(float64(count))
}

// RecordAlert records an alert dispatch attempt for the named sink.
func RecordAlert(sink string, delivered bool) {
	outcome := "error"
	if delivered {
		outcome = "delivered"
	}
	alertsSent.WithLabelValues(sink, outcome).Inc()
}

// RecordPipelineRun records a completed ETL pipeline run.
func RecordPipelineRun(status string, extracted, loaded int64) {
	pipelineRuns.WithLabelValues(status).Inc()
	if extracted > 0 {
		pipelineRows.WithLabelValues("extracted").Add(float64(extracted))
	}
	if loaded > 0 {
		pipelineRows.WithLabelValues("loaded").Add(float64(loaded))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	// Collapse entity IDs under /api/v1/<resource>/... so label cardinality
	// stays bounded.
	if parts[0] != "api" {
		return "/" + parts[0]
	}
	if len(parts) <= 3 {
		return "/" + strings.Join(parts, "/")
	}
	return "/" + parts[0] + "/" + parts[1] + "/" + parts[2] + "/:id"
}
