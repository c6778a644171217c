// Package metrics exposes Prometheus collectors for the collector service.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	apiRequestsTotal              *prometheus.CounterVec
	throttlesTotal                *prometheus.CounterVec
	throttleCooldownSeconds       prometheus.Histogram
	requestPacingDelaySeconds     prometheus.Histogram
	unitsTotal                    *prometheus.CounterVec
	unitsInFlight                 prometheus.Gauge
	authorsTotal                  *prometheus.CounterVec
	ingestRecordsTotal            *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	lastRunCompletedTimestampSecs prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; the Observe helpers call it
// on first use.
func Init() {
	once.Do(func() {
		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_api_requests_total",
				Help: "Total number of Reddit API requests, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		throttlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_throttles_total",
				Help: "Total number of throttling responses, labeled by operation.",
			},
			[]string{"operation"},
		)

		throttleCooldownSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "collector_throttle_cooldown_seconds",
				Help:    "Histogram of cooldowns slept after throttling responses.",
				Buckets: []float64{1, 2, 3, 5, 10, 30, 60, 120},
			},
		)

		requestPacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "collector_request_pacing_delay_seconds",
				Help:    "Histogram of client-side request pacing waits.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5},
			},
		)

		unitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_units_total",
				Help: "Total number of scheduled units, labeled by status.",
			},
			[]string{"status"},
		)

		unitsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_units_in_flight",
				Help: "Number of units currently holding an admission slot.",
			},
		)

		authorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_authors_total",
				Help: "Total number of author resolutions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		ingestRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_total",
				Help: "Total number of records processed by ingestion, labeled by table and outcome.",
			},
			[]string{"table", "outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		lastRunCompletedTimestampSecs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_last_run_completed_timestamp_seconds",
				Help: "Unix time of the last completed run.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Push sends the default registry to a Pushgateway under the given job name.
func Push(ctx context.Context, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// ObserveAPIRequest counts one remote request.
func ObserveAPIRequest(endpoint, outcome string) {
	Init()
	apiRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveThrottle counts a throttling response for the named operation.
func ObserveThrottle(operation string) {
	Init()
	throttlesTotal.WithLabelValues(operation).Inc()
}

// ObserveCooldown records a cooldown slept by the governor.
func ObserveCooldown(d time.Duration) {
	Init()
	throttleCooldownSeconds.Observe(d.Seconds())
}

// ObservePacingDelay records a client-side pacing wait.
func ObservePacingDelay(d time.Duration) {
	Init()
	requestPacingDelaySeconds.Observe(d.Seconds())
}

// ObserveUnit counts a finished unit.
func ObserveUnit(status string) {
	Init()
	unitsTotal.WithLabelValues(status).Inc()
}

// IncUnitsInFlight increments the in-flight gauge.
func IncUnitsInFlight() {
	Init()
	unitsInFlight.Inc()
}

// DecUnitsInFlight decrements the in-flight gauge.
func DecUnitsInFlight() {
	Init()
	unitsInFlight.Dec()
}

// ObserveAuthor counts an author resolution outcome.
func ObserveAuthor(outcome string) {
	Init()
	authorsTotal.WithLabelValues(outcome).Inc()
}

// ObserveIngest counts an ingested record.
func ObserveIngest(table, outcome string) {
	Init()
	ingestRecordsTotal.WithLabelValues(table, outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// MarkRunCompleted stamps the completion time of a run.
func MarkRunCompleted(at time.Time) {
	Init()
	lastRunCompletedTimestampSecs.Set(float64(at.Unix()))
}
