package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	JobOutcomeSuccess = "success"
	JobOutcomeFailure = "failure"
	JobOutcomeSkipped = "skipped"
)

// CronJobMetrics tracks scheduled settlement jobs.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Duration of cron jobs that acquired their lock.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Cron job runs by outcome.",
		}, []string{"job", "outcome"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.duration, m.runs, m.lastSuccess)
	return m
}

// ObserveRun records a job that held its lock and ran to completion or error.
func (c *CronJobMetrics) ObserveRun(job string, started time.Time, duration time.Duration, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(duration.Seconds())
	if err != nil {
		c.runs.WithLabelValues(job, JobOutcomeFailure).Inc()
		return
	}
	c.runs.WithLabelValues(job, JobOutcomeSuccess).Inc()
	c.lastSuccess.WithLabelValues(job).Set(float64(started.Add(duration).Unix()))
}

// ObserveOutcome counts a run that never reached the job body.
func (c *CronJobMetrics) ObserveOutcome(job, outcome string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(job), outcome).Inc()
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
