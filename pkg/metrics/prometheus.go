package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes the engine's Prometheus instruments.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	jobRuns       *prometheus.CounterVec
	jobItems      *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	providerCalls *prometheus.CounterVec
	failureHits   prometheus.Counter
	cacheLookups  *prometheus.CounterVec
	alerts        *prometheus.CounterVec
}

// New registers the instruments on reg
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		jobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_job_runs_total",
				Help: "Job runs by final status",
			},
			[]string{"job", "status"},
		),
		jobItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_job_items_total",
				Help: "Units processed by jobs, split by outcome",
			},
			[]string{"job", "outcome"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "folio_job_duration_seconds",
				Help:    "Job run duration in seconds",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
			},
			[]string{"job"},
		),
		providerCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_provider_calls_total",
				Help: "Price provider calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		failureHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "folio_failure_cache_hits_total",
				Help: "Refreshes short-circuited by a live failure record",
			},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_cache_lookups_total",
				Help: "Artifact cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_alerts_total",
				Help: "Alerts emitted by kind and severity",
			},
			[]string{"kind", "severity"},
		),
	}
}

// RecordJob records one finished job run
func (r *Recorder) RecordJob(job, status string, processed, failed int, d time.Duration) {
	if r == nil {
		return
	}
	r.jobRuns.WithLabelValues(job, status).Inc()
	r.jobItems.WithLabelValues(job, "processed").Add(float64(processed))
	r.jobItems.WithLabelValues(job, "failed").Add(float64(failed))
	r.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// RecordProviderCall records a provider call outcome ("ok", "not_found", "rate_limited", "error")
func (r *Recorder) RecordProviderCall(provider, outcome string) {
	if r == nil {
		return
	}
	r.providerCalls.WithLabelValues(provider, outcome).Inc()
}

// RecordFailureCacheHit counts a refresh suppressed by the failure cache
func (r *Recorder) RecordFailureCacheHit() {
	if r == nil {
		return
	}
	r.failureHits.Inc()
}

// RecordCacheLookup records a cache hit or miss
func (r *Recorder) RecordCacheLookup(kind string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordAlert counts an emitted alert
func (r *Recorder) RecordAlert(kind, severity string) {
	if r == nil {
		return
	}
	r.alerts.WithLabelValues(kind, severity).Inc()
}
