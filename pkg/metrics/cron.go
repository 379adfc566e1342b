package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	JobSucceeded = "success"
	JobFailed    = "failure"
)

// CronJobMetrics covers scheduled jobs and the cycles skipped because
// another instance held the lock.
type CronJobMetrics struct {
	duration      *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	lockContended prometheus.Counter
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "cron_job_duration_seconds",
			Help:      "Wall time of scheduled jobs.",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900, 1800, 3600},
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cron_job_runs_total",
			Help:      "Scheduled job runs by outcome.",
		}, []string{"job", "outcome"}),
		lockContended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cron_cycles_lock_contended_total",
			Help:      "Cycles skipped because the scheduler lock was held elsewhere.",
		}),
	}
	reg.MustRegister(m.duration, m.runs, m.lockContended)
	return m
}

// ObserveRun records one finished job run.
func (c *CronJobMetrics) ObserveRun(job string, d time.Duration, err error) {
	if c == nil || c.runs == nil {
		return
	}
	outcome := JobSucceeded
	if err != nil {
		outcome = JobFailed
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(d.Seconds())
	c.runs.WithLabelValues(job, outcome).Inc()
}

func (c *CronJobMetrics) IncLockContended() {
	if c == nil || c.lockContended == nil {
		return
	}
	c.lockContended.Inc()
}
