// Package metrics exposes Prometheus metrics for job execution, the job
// cache, and the batch loop. Init is optional; all record functions are
// no-ops until it is called.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type collectors struct {
	registry *prometheus.Registry

	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobsInflight   *prometheus.GaugeVec
	cacheEntries   *prometheus.GaugeVec
	deferredTotal  *prometheus.CounterVec
	fetchAttempts  prometheus.Counter
	pushAttempts   prometheus.Counter
	pushAbandoned  prometheus.Counter
	batchJobsTotal *prometheus.CounterVec
}

// Default histogram buckets for job duration in milliseconds.
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

var global *collectors

// Init initializes the Prometheus metrics subsystem.
func Init(namespace string) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	c := &collectors{
		registry: registry,

		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Total jobs executed, by tool and outcome",
			},
			[]string{"tool", "status"},
		),

		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_milliseconds",
				Help:      "Duration of worker executions in milliseconds",
				Buckets:   defaultBuckets,
			},
			[]string{"tool"},
		),

		jobsInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_inflight",
				Help:      "Workers currently running, by tool",
			},
			[]string{"tool"},
		),

		cacheEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "job_cache_entries",
				Help:      "Job slots currently tracked, by tool",
			},
			[]string{"tool"},
		),

		deferredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deferred_responses_total",
				Help:      "Requests answered with a retry-later response, by tool",
			},
			[]string{"tool"},
		),

		fetchAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_fetch_attempts_total",
				Help:      "Attempts to fetch the next batch job from the dispatcher",
			},
		),

		pushAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_push_attempts_total",
				Help:      "Attempts to push a batch result to the dispatcher",
			},
		),

		pushAbandoned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_push_abandoned_total",
				Help:      "Batch results abandoned after exhausting push attempts",
			},
		),

		batchJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_jobs_total",
				Help:      "Batch jobs processed, by outcome",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		c.jobsTotal, c.jobDuration, c.jobsInflight, c.cacheEntries,
		c.deferredTotal, c.fetchAttempts, c.pushAttempts, c.pushAbandoned,
		c.batchJobsTotal,
	)
	global = c
}

// RecordJob records one finished worker execution.
func RecordJob(tool, status string, durationMs int64) {
	if global == nil {
		return
	}
	global.jobsTotal.WithLabelValues(tool, status).Inc()
	global.jobDuration.WithLabelValues(tool).Observe(float64(durationMs))
}

// IncInflight tracks a worker starting.
func IncInflight(tool string) {
	if global == nil {
		return
	}
	global.jobsInflight.WithLabelValues(tool).Inc()
}

// DecInflight tracks a worker finishing.
func DecInflight(tool string) {
	if global == nil {
		return
	}
	global.jobsInflight.WithLabelValues(tool).Dec()
}

// SetCacheEntries sets the tracked slot count for a tool's job cache.
func SetCacheEntries(tool string, n int) {
	if global == nil {
		return
	}
	global.cacheEntries.WithLabelValues(tool).Set(float64(n))
}

// RecordDeferred records a request answered with the retry-later response.
func RecordDeferred(tool string) {
	if global == nil {
		return
	}
	global.deferredTotal.WithLabelValues(tool).Inc()
}

// RecordFetchAttempt records one dispatcher fetch attempt.
func RecordFetchAttempt() {
	if global == nil {
		return
	}
	global.fetchAttempts.Inc()
}

// RecordPushAttempt records one dispatcher push attempt.
func RecordPushAttempt() {
	if global == nil {
		return
	}
	global.pushAttempts.Inc()
}

// RecordPushAbandoned records a result given up on after retry exhaustion.
func RecordPushAbandoned() {
	if global == nil {
		return
	}
	global.pushAbandoned.Inc()
}

// RecordBatchJob records one batch job processed.
func RecordBatchJob(status string) {
	if global == nil {
		return
	}
	global.batchJobsTotal.WithLabelValues(status).Inc()
}

// Handler returns the /metrics HTTP handler, or nil when Init was not called.
func Handler() http.Handler {
	if global == nil {
		return nil
	}
	return promhttp.HandlerFor(global.registry, promhttp.HandlerOpts{})
}
