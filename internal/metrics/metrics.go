// ============================================================================
// Aegis Metrics - Prometheus monitoring for the pool runtime
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: collect and expose per-model pool metrics for Prometheus.
//
// Shaped around pool metrics rather than a durable job queue's
// (queue_jobs_enqueued_total, queue_jobs_pending, ...): there is no
// durable job queue here, so backlog is expressed as Thread counts and
// queue rate rather than pending/dead-letter counters. Every metric
// carries a "model" label so one process serving many models still
// exposes one time series per model, served from a single-process,
// single-registry StartServer.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements pool.Observer and exposes the runtime's pool
// metrics to Prometheus.
type Collector struct {
	totalThreads *prometheus.GaugeVec
	freeThreads  *prometheus.GaugeVec
	queueRate    *prometheus.GaugeVec

	jobsRequested *prometheus.CounterVec
	jobsQueued    *prometheus.CounterVec
	reloads       *prometheus.CounterVec

	jobDuration *prometheus.HistogramVec
}

// NewCollector builds and registers a Collector against Prometheus's
// default registerer.
func NewCollector() *Collector {
	c := &Collector{
		totalThreads: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_total_threads",
			Help: "Current number of Threads in a model's pool",
		}, []string{"model"}),
		freeThreads: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_free_threads",
			Help: "Current number of idle Threads in a model's pool",
		}, []string{"model"}),
		queueRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_queue_rate_percent",
			Help: "Percentage of submitted jobs that had to be queued rather than dispatched immediately",
		}, []string{"model"}),
		jobsRequested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_jobs_requested_total",
			Help: "Total number of jobs submitted to a model's pool",
		}, []string{"model"}),
		jobsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_jobs_queued_total",
			Help: "Total number of jobs that had to wait for a Thread",
		}, []string{"model"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_reloads_total",
			Help: "Total number of completed reload cycles",
		}, []string{"model"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pool_job_duration_seconds",
			Help:    "Job execution time from dispatch to result, in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
	}

	prometheus.MustRegister(
		c.totalThreads, c.freeThreads, c.queueRate,
		c.jobsRequested, c.jobsQueued, c.reloads,
		c.jobDuration,
	)

	return c
}

// SetThreads implements pool.Observer.
func (c *Collector) SetThreads(model string, total, free int) {
	c.totalThreads.WithLabelValues(model).Set(float64(total))
	c.freeThreads.WithLabelValues(model).Set(float64(free))
}

// SetQueueRate implements pool.Observer.
func (c *Collector) SetQueueRate(model string, rate int) {
	c.queueRate.WithLabelValues(model).Set(float64(rate))
}

// IncJobsRequested implements pool.Observer.
func (c *Collector) IncJobsRequested(model string) {
	c.jobsRequested.WithLabelValues(model).Inc()
}

// IncJobsQueued implements pool.Observer.
func (c *Collector) IncJobsQueued(model string) {
	c.jobsQueued.WithLabelValues(model).Inc()
}

// IncReloads implements pool.Observer.
func (c *Collector) IncReloads(model string) {
	c.reloads.WithLabelValues(model).Inc()
}

// ObserveJobDuration implements pool.Observer.
func (c *Collector) ObserveJobDuration(model string, seconds float64) {
	c.jobDuration.WithLabelValues(model).Observe(seconds)
}

// StartServer starts the Prometheus metrics HTTP server on port,
// serving /metrics. It blocks until the server stops or errors.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
