package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	metricsNamespace = "df_smoke"
	pushJobName      = "digitfellas_api_smoke"
)

var (
	// API request metrics
	requestLatency     *prometheus.HistogramVec
	requestErrors      *prometheus.CounterVec
	requestStatusCodes *prometheus.CounterVec

	// Per-check metrics
	checkResult   *prometheus.GaugeVec
	checkDuration *prometheus.GaugeVec
	checksTotal   *prometheus.CounterVec

	// Per-run metrics
	runCheckCounts   *prometheus.GaugeVec
	runDuration      prometheus.Gauge
	runSuccess       prometheus.Gauge
	runLastTimestamp prometheus.Gauge
	runsTotal        *prometheus.CounterVec

	restoreFailures prometheus.Counter
)

func init() {
	// Latency buckets sized for CMS API response times
	requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_latency_milliseconds",
			Help:      "CMS API response latency in milliseconds",
			Buckets:   []float64{25, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
		},
		[]string{"method", "endpoint"},
	)
	prometheus.MustRegister(requestLatency)

	requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "request_errors_total",
			Help:      "Total number of CMS API requests that failed before or while decoding a response",
		},
		[]string{"method", "endpoint", "error_type"},
	)
	prometheus.MustRegister(requestErrors)

	requestStatusCodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "request_status_codes_total",
			Help:      "Total count of CMS API responses by status code",
		},
		[]string{"method", "endpoint", "status_code"},
	)
	prometheus.MustRegister(requestStatusCodes)

	checkResult = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "check_result",
			Help:      "Result of the last run of a check (1 passed, 0 failed)",
		},
		[]string{"check"},
	)
	prometheus.MustRegister(checkResult)

	checkDuration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "check_duration_seconds",
			Help:      "Duration of the last run of a check",
		},
		[]string{"check"},
	)
	prometheus.MustRegister(checkDuration)

	checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "checks_total",
			Help:      "Total number of check executions by result",
		},
		[]string{"check", "result"},
	)
	prometheus.MustRegister(checksTotal)

	runCheckCounts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "run_checks",
			Help:      "Number of checks in the last run by result",
		},
		[]string{"result"},
	)
	prometheus.MustRegister(runCheckCounts)

	runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the last run",
	})
	prometheus.MustRegister(runDuration)

	runSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "run_success",
		Help:      "1 if every check of the last run passed, 0 otherwise",
	})
	prometheus.MustRegister(runSuccess)

	runLastTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished",
	})
	prometheus.MustRegister(runLastTimestamp)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Total number of runs by result",
		},
		[]string{"result"},
	)
	prometheus.MustRegister(runsTotal)

	restoreFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "restore_failures_total",
		Help:      "Total number of failed attempts to restore the site after the write check",
	})
	prometheus.MustRegister(restoreFailures)
}

// RecordRequestLatency records the latency and status code of an API call
func RecordRequestLatency(method string, endpoint string, statusCode int, latencyMs float64) {
	requestLatency.WithLabelValues(method, endpoint).Observe(latencyMs)
	requestStatusCodes.WithLabelValues(method, endpoint, fmt.Sprintf("%d", statusCode)).Inc()
}

// RecordRequestError records an API call that produced no usable response
func RecordRequestError(method string, endpoint string, errorType string) {
	requestErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

func RecordCheckResult(check string, passed bool, d time.Duration) {
	checkResult.WithLabelValues(check).Set(boolToFloat(passed))
	checkDuration.WithLabelValues(check).Set(d.Seconds())
	checksTotal.WithLabelValues(check, resultLabel(passed)).Inc()
}

func RecordRun(result *RunResult) {
	runCheckCounts.WithLabelValues("passed").Set(float64(result.Stats.Passed))
	runCheckCounts.WithLabelValues("failed").Set(float64(result.Stats.Failed))
	runDuration.Set(result.Duration.Seconds())
	runSuccess.Set(boolToFloat(result.Passed()))
	runLastTimestamp.Set(float64(result.Stats.EndTime.Unix()))
	runsTotal.WithLabelValues(resultLabel(result.Passed())).Inc()
}

func RecordRestoreFailure() {
	restoreFailures.Inc()
}

// PushMetrics pushes the default registry to a Prometheus Pushgateway.
func PushMetrics(ctx context.Context, url string, target string) error {
	return push.New(url, pushJobName).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("target", target).
		PushContext(ctx)
}

// NewMetricsServer returns a server exposing /metrics on addr.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func resultLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
