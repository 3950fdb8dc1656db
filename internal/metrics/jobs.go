package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobTransitionsTotal,
		jobsInFlight,
		jobDurationSeconds,
		jobDuplicateStartsTotal,
		threatCategoryFailuresTotal,
		threatsIdentifiedTotal,
		jobsDeletedTotal,
	)
}

var (
	jobTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_job_transitions_total",
			Help: "Job status transitions, labeled by target status.",
		},
		[]string{"status"},
	)

	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "threatlens_jobs_in_flight",
			Help: "Jobs currently held by the processor.",
		},
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threatlens_job_duration_seconds",
			Help:    "Wall time from processing to a terminal status.",
			Buckets: []float64{5, 10, 20, 30, 60, 90, 120, 180, 300, 600},
		},
		[]string{"status"},
	)

	jobDuplicateStartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "threatlens_job_duplicate_starts_total",
			Help: "StartJob calls ignored because the job was already running.",
		},
	)

	threatCategoryFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threat_category_failures_total",
			Help: "STRIDE categories whose model response could not be parsed.",
		},
		[]string{"category"},
	)

	threatsIdentifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_threats_identified_total",
			Help: "Threats included in completed reports, labeled by severity.",
		},
		[]string{"severity"},
	)

	jobsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "threatlens_jobs_deleted_total",
			Help: "Jobs removed by retention cleanup.",
		},
	)
)

func IncJobTransition(status string) {
	jobTransitionsTotal.WithLabelValues(norm(status)).Inc()
}

func JobStarted() { jobsInFlight.Inc() }

func JobFinished() { jobsInFlight.Dec() }

func ObserveJobDuration(status string, d time.Duration) {
	jobDurationSeconds.WithLabelValues(norm(status)).Observe(d.Seconds())
}

func IncDuplicateStart() { jobDuplicateStartsTotal.Inc() }

func IncCategoryFailure(category string) {
	threatCategoryFailuresTotal.WithLabelValues(category).Inc()
}

func AddThreats(severity string, n int) {
	threatsIdentifiedTotal.WithLabelValues(norm(severity)).Add(float64(n))
}

func AddJobsDeleted(n int64) { jobsDeletedTotal.Add(float64(n)) }
