package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics tracks sync engine runs.
type SyncMetrics struct {
	runs        *prometheus.CounterVec
	upserts     *prometheus.CounterVec
	skipped     prometheus.Counter
	lastSuccess prometheus.Gauge
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sync_runs_total",
		Help:      "Sync runs by outcome (success, error, skipped).",
	}, []string{"outcome"})
	upserts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sync_upserts_total",
		Help:      "Rows upserted by the sync engine.",
	}, []string{"table"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sync_records_skipped_total",
		Help:      "Feed records skipped because they carry no place.",
	})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "sync_last_success_timestamp_seconds",
		Help:      "Unix time of the last successful sync run.",
	})
	reg.MustRegister(runs, upserts, skipped, lastSuccess)
	return &SyncMetrics{runs: runs, upserts: upserts, skipped: skipped, lastSuccess: lastSuccess}
}

func (m *SyncMetrics) IncRun(outcome string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *SyncMetrics) AddUpserts(table string, n int) {
	if m == nil || m.upserts == nil || n <= 0 {
		return
	}
	m.upserts.WithLabelValues(normalizeLabel(table)).Add(float64(n))
}

func (m *SyncMetrics) IncSkipped() {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Inc()
}

func (m *SyncMetrics) SetLastSuccess(at time.Time) {
	if m == nil || m.lastSuccess == nil {
		return
	}
	m.lastSuccess.Set(float64(at.Unix()))
}
