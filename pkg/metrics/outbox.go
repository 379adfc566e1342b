package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcomes recorded by the dispatcher.
const (
	OutcomeSent         = "sent"
	OutcomeRetry        = "retry"
	OutcomeRejected     = "rejected"
	OutcomeDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks dispatcher deliveries and backlog.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	latency    prometheus.Histogram
	backlog    prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "outbox_deliveries_total",
		Help:      "Outbox delivery attempts by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "outbox_delivery_duration_seconds",
		Help:      "Time spent delivering one outbox record.",
		Buckets:   prometheus.DefBuckets,
	})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "outbox_backlog",
		Help:      "Records selected by the last dispatcher tick.",
	})
	reg.MustRegister(deliveries, latency, backlog)
	return &OutboxMetrics{deliveries: deliveries, latency: latency, backlog: backlog}
}

func (m *OutboxMetrics) IncDelivery(outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) ObserveDelivery(d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}

func (m *OutboxMetrics) SetBacklog(n int) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(n))
}
