// Package metrics provides Prometheus instrumentation for agentbook.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Agent domain metrics
	agentRegisterTotal *prometheus.CounterVec

	// Deployment domain metrics
	deploymentRecordTotal *prometheus.CounterVec

	// Verification pipeline metrics
	verificationAttemptTotal *prometheus.CounterVec
	explorerSubmitTotal      *prometheus.CounterVec
	auditTotal               *prometheus.CounterVec
	workerCycleDuration      prometheus.Histogram
	workerBatchSize          prometheus.Histogram
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	agentRegisterTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_register_total",
			Help: "Total number of agent registrations",
		},
		[]string{"status"},
	)

	deploymentRecordTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployment_record_total",
			Help: "Total number of deployments recorded",
		},
		[]string{"chain", "status"},
	)

	verificationAttemptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_attempt_total",
			Help: "Total number of verification attempts by outcome",
		},
		[]string{"chain", "outcome"},
	)

	explorerSubmitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_submit_total",
			Help: "Total number of explorer verification submissions",
		},
		[]string{"chain", "outcome"},
	)

	auditTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safety_audit_total",
			Help: "Total number of safety audit verdicts",
		},
		[]string{"verdict"},
	)

	workerCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_cycle_duration_seconds",
			Help:    "Duration of one verification worker cycle",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	workerBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_batch_size",
			Help:    "Number of deployments picked up per worker cycle",
			Buckets: []float64{0, 1, 2, 5, 10},
		},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
