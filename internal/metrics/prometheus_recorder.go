package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	eventsReceived   prom.Counter
	jobsScanned      prom.Counter
	repoMatches      prom.Counter
	outcomes         *prom.CounterVec
	dispatchDuration prom.Histogram
	buildDuration    *prom.HistogramVec
	buildOutcomes    *prom.CounterVec
	queueLength      prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on the
// given registry. A nil registry gets a fresh one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		eventsReceived: prom.NewCounter(prom.CounterOpts{
			Namespace: "buildhook",
			Name:      "push_events_received_total",
			Help:      "Push events received for dispatch",
		}),
		jobsScanned: prom.NewCounter(prom.CounterOpts{
			Namespace: "buildhook",
			Name:      "jobs_scanned_total",
			Help:      "Git-capable jobs examined during dispatch scans",
		}),
		repoMatches: prom.NewCounter(prom.CounterOpts{
			Namespace: "buildhook",
			Name:      "repository_matches_total",
			Help:      "Configured remotes that matched an event URI",
		}),
		outcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildhook",
			Name:      "dispatch_outcomes_total",
			Help:      "Per-job dispatch outcomes by kind",
		}, []string{"kind"}),
		dispatchDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "buildhook",
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of full dispatch scans",
			Buckets:   prom.DefBuckets,
		}),
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "buildhook",
			Name:      "build_duration_seconds",
			Help:      "Duration of executed builds",
			Buckets:   prom.DefBuckets,
		}, []string{"job", "result"}),
		buildOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildhook",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		queueLength: prom.NewGauge(prom.GaugeOpts{
			Namespace: "buildhook",
			Name:      "queue_length",
			Help:      "Current build queue length",
		}),
	}
	reg.MustRegister(
		pr.eventsReceived, pr.jobsScanned, pr.repoMatches, pr.outcomes,
		pr.dispatchDuration, pr.buildDuration, pr.buildOutcomes, pr.queueLength,
	)
	return pr
}

func (pr *PrometheusRecorder) IncEventsReceived() { pr.eventsReceived.Inc() }

func (pr *PrometheusRecorder) IncJobsScanned(n int) { pr.jobsScanned.Add(float64(n)) }

func (pr *PrometheusRecorder) IncRepositoryMatches(n int) { pr.repoMatches.Add(float64(n)) }

func (pr *PrometheusRecorder) IncOutcome(kind string) { pr.outcomes.WithLabelValues(kind).Inc() }

func (pr *PrometheusRecorder) ObserveDispatchDuration(d time.Duration) {
	pr.dispatchDuration.Observe(d.Seconds())
}

func (pr *PrometheusRecorder) ObserveBuildDuration(job string, d time.Duration, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	pr.buildDuration.WithLabelValues(job, result).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncBuildOutcome(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	pr.buildOutcomes.WithLabelValues(outcome).Inc()
}

func (pr *PrometheusRecorder) SetQueueLength(n int) { pr.queueLength.Set(float64(n)) }
