// Package metrics exports executor activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// Metric names.
const (
	MetricAttemptsTotal          = "vendorbridge_provider_attempts_total"
	MetricAttemptDurationSeconds = "vendorbridge_provider_attempt_duration_seconds"
	MetricRateLimitWaitsTotal    = "vendorbridge_rate_limit_waits_total"
	MetricRateLimitWaitSeconds   = "vendorbridge_rate_limit_wait_seconds"
	MetricRetriesTotal           = "vendorbridge_retries_total"
)

// OutcomeSuccess labels attempts that returned no error. Failed attempts are
// labeled with their error kind.
const OutcomeSuccess = "success"

// Compile-time interface satisfaction check.
var _ resilience.Observer = (*Recorder)(nil)

// Recorder implements resilience.Observer on a private registry, so several
// recorders can coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	waits           *prometheus.CounterVec
	waitSeconds     *prometheus.HistogramVec
	retries         *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its metrics registered. Go runtime and
// process collectors are included when withRuntime is set.
func NewRecorder(withRuntime bool) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAttemptsTotal,
			Help: "Vendor call attempts by outcome.",
		}, []string{"domain", "vendor", "operation", "outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricAttemptDurationSeconds,
			Help:    "Duration of single vendor call attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"domain", "vendor", "operation"}),
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitWaitsTotal,
			Help: "Times a call waited for rate window admission.",
		}, []string{"domain", "vendor"}),
		waitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricRateLimitWaitSeconds,
			Help:    "Length of rate window waits.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"domain", "vendor"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRetriesTotal,
			Help: "Retries scheduled after a failed attempt, by error kind.",
		}, []string{"domain", "vendor", "operation", "kind"}),
	}
	r.registry.MustRegister(r.attempts, r.attemptDuration, r.waits, r.waitSeconds, r.retries)
	if withRuntime {
		r.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return r
}

// Registry returns the registry the recorder's metrics live in.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// AttemptFinished counts one attempt and observes its duration.
func (r *Recorder) AttemptFinished(id model.ProviderIdentity, operation string, elapsed time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = string(resilience.FromError(err).Kind)
	}
	r.attempts.WithLabelValues(string(id.Domain), id.Vendor, operation, outcome).Inc()
	r.attemptDuration.WithLabelValues(string(id.Domain), id.Vendor, operation).Observe(elapsed.Seconds())
}

// RateLimited counts one admission wait.
func (r *Recorder) RateLimited(id model.ProviderIdentity, wait time.Duration) {
	r.waits.WithLabelValues(string(id.Domain), id.Vendor).Inc()
	r.waitSeconds.WithLabelValues(string(id.Domain), id.Vendor).Observe(wait.Seconds())
}

// RetryScheduled counts one retry.
func (r *Recorder) RetryScheduled(id model.ProviderIdentity, operation string, kind model.ErrorKind, _ time.Duration) {
	r.retries.WithLabelValues(string(id.Domain), id.Vendor, operation, string(kind)).Inc()
}

// Handler serves the exposition format for registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
