package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/delivery-queue/internal/domain"
	"github.com/notifyhub/delivery-queue/internal/service"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	NotificationsEnqueued *prometheus.CounterVec
	NotificationsSent     *prometheus.CounterVec
	NotificationsRetried  *prometheus.CounterVec
	NotificationsFailed   *prometheus.CounterVec
	AttemptLatency        *prometheus.HistogramVec
	ItemsByStatus         *prometheus.GaugeVec
	PassesTotal           *prometheus.CounterVec
	ItemsPurged           prometheus.Counter
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_enqueued_total",
			Help: "Total number of notifications accepted into the queue.",
		}, []string{"priority"}),

		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of successfully delivered notifications.",
		}, []string{"priority"}),

		NotificationsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_retried_total",
			Help: "Total number of failed attempts that were rescheduled.",
		}, []string{"priority"}),

		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of permanently failed notifications (attempts exhausted).",
		}, []string{"priority"}),

		AttemptLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_attempt_seconds",
			Help:    "Latency of successful delivery attempts, backend call included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"priority"}),

		ItemsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_items",
			Help: "Items currently held in the queue store, by status.",
		}, []string{"status"}),

		PassesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_passes_total",
			Help: "Drain passes by result (ok, store_error, skipped).",
		}, []string{"result"}),

		ItemsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_items_purged_total",
			Help: "Items removed by retention expiry.",
		}),
	}

	reg.MustRegister(
		m.NotificationsEnqueued,
		m.NotificationsSent,
		m.NotificationsRetried,
		m.NotificationsFailed,
		m.AttemptLatency,
		m.ItemsByStatus,
		m.PassesTotal,
		m.ItemsPurged,
	)

	return m
}

// ServiceHooks returns the metric callbacks expected by service.Hooks.
// Centralises the prometheus observation calls so the service stays import-free.
func (m *Metrics) ServiceHooks() service.Hooks {
	return service.Hooks{
		OnEnqueued: func(p domain.Priority) {
			m.NotificationsEnqueued.WithLabelValues(label(p)).Inc()
		},
		OnSent: func(p domain.Priority, latency time.Duration) {
			m.NotificationsSent.WithLabelValues(label(p)).Inc()
			m.AttemptLatency.WithLabelValues(label(p)).Observe(latency.Seconds())
		},
		OnRetry: func(p domain.Priority, _ int) {
			m.NotificationsRetried.WithLabelValues(label(p)).Inc()
		},
		OnFailed: func(p domain.Priority) {
			m.NotificationsFailed.WithLabelValues(label(p)).Inc()
		},
	}
}

// label folds unknown priorities into NORMAL so client input cannot grow the series count.
func label(p domain.Priority) string {
	return string(p.Normalized())
}

// ObserveStatistics publishes a statistics snapshot to the status gauges.
func (m *Metrics) ObserveStatistics(st service.Statistics) {
	m.ItemsByStatus.WithLabelValues(string(domain.StatusQueued)).Set(float64(st.Queued))
	m.ItemsByStatus.WithLabelValues(string(domain.StatusSending)).Set(float64(st.Sending))
	m.ItemsByStatus.WithLabelValues(string(domain.StatusSent)).Set(float64(st.Sent))
	m.ItemsByStatus.WithLabelValues(string(domain.StatusFailed)).Set(float64(st.Failed))
	m.ItemsByStatus.WithLabelValues(string(domain.StatusRetrying)).Set(float64(st.Retrying))
}

// ObservePass counts one drain pass by result.
func (m *Metrics) ObservePass(result string) {
	m.PassesTotal.WithLabelValues(result).Inc()
}

// ObservePurged counts items removed by the purge worker.
func (m *Metrics) ObservePurged(n int64) {
	m.ItemsPurged.Add(float64(n))
}
