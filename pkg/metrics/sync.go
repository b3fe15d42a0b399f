package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pos"

// SyncMetrics records offline queue and synchronization pass activity.
type SyncMetrics struct {
	duration *prometheus.HistogramVec
	synced   *prometheus.CounterVec
	failed   *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	depth    prometheus.Gauge
	checkout *prometheus.CounterVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_pass_duration_seconds",
		Help:      "Duration of offline queue synchronization passes in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"trigger"})
	synced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_orders_synced_total",
		Help:      "Queued orders accepted by the order service during a pass.",
	}, []string{"trigger"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_orders_failed_total",
		Help:      "Queued orders left in the queue after a failed resubmission.",
	}, []string{"trigger"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_passes_skipped_total",
		Help:      "Sync triggers dropped because a pass was already running.",
	}, []string{"trigger"})
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "offline_queue_depth",
		Help:      "Orders waiting in the durable offline queue.",
	})
	checkout := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_outcomes_total",
		Help:      "Checkout confirmations by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(duration, synced, failed, skipped, depth, checkout)
	return &SyncMetrics{
		duration: duration,
		synced:   synced,
		failed:   failed,
		skipped:  skipped,
		depth:    depth,
		checkout: checkout,
	}
}

// ObservePass records one completed pass.
func (m *SyncMetrics) ObservePass(trigger string, duration time.Duration, synced, failed int) {
	if m == nil || m.duration == nil {
		return
	}
	label := normalizeLabel(trigger)
	m.duration.WithLabelValues(label).Observe(duration.Seconds())
	m.synced.WithLabelValues(label).Add(float64(synced))
	m.failed.WithLabelValues(label).Add(float64(failed))
}

// IncSkipped counts a trigger dropped while locked.
func (m *SyncMetrics) IncSkipped(trigger string) {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.WithLabelValues(normalizeLabel(trigger)).Inc()
}

// SetQueueDepth publishes the pending order count.
func (m *SyncMetrics) SetQueueDepth(depth int64) {
	if m == nil || m.depth == nil {
		return
	}
	m.depth.Set(float64(depth))
}

// ObserveCheckout counts one checkout confirmation outcome.
func (m *SyncMetrics) ObserveCheckout(outcome string) {
	if m == nil || m.checkout == nil {
		return
	}
	m.checkout.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
