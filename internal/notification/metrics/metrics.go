package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for notification delivery.
type Metrics struct {
	// Final per-channel outcome by channel and delivery status
	Dispatched *prometheus.CounterVec

	// Payloads held back by reason (quiet_hours / rate_limited)
	Deferred *prometheus.CounterVec

	// Payloads not delivered at all by reason (type_disabled, channel_disabled, ...)
	Dropped *prometheus.CounterVec

	// Individual transport calls by channel and result
	// (success / transient / permanent / breaker_open)
	Attempts *prometheus.CounterVec

	DeliveryLatency *prometheus.HistogramVec

	DigestFlushes *prometheus.CounterVec

	// 1 while the channel's circuit breaker is open
	BreakerOpen *prometheus.GaugeVec

	// Domain events waiting in orchestrator shards
	QueueDepth prometheus.Gauge
}

// New creates the notification metrics on reg. A nil registerer leaves the
// collectors unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safecircle_notifications_dispatched_total",
			Help: "Total channel deliveries by channel and final status",
		}, []string{"channel", "status"}),

		Deferred: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safecircle_notifications_deferred_total",
			Help: "Total channel deliveries deferred by reason",
		}, []string{"reason"}),

		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safecircle_notifications_dropped_total",
			Help: "Total notifications dropped by preference reason",
		}, []string{"reason"}),

		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safecircle_notification_delivery_attempts_total",
			Help: "Total transport calls by channel and result",
		}, []string{"channel", "result"}),

		DeliveryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safecircle_notification_delivery_duration_seconds",
			Help:    "Duration of a channel delivery including retries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"channel"}),

		DigestFlushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safecircle_notification_digest_flushes_total",
			Help: "Total digests delivered by frequency",
		}, []string{"frequency"}),

		BreakerOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "safecircle_notification_breaker_open",
			Help: "Whether the channel transport breaker is open",
		}, []string{"channel"}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "safecircle_notification_queue_depth",
			Help: "Domain events accepted but not yet processed",
		}),
	}
}

func (m *Metrics) IncrementDispatched(channel, status string) {
	if m != nil {
		m.Dispatched.WithLabelValues(channel, status).Inc()
	}
}

func (m *Metrics) IncrementDeferred(reason string) {
	if m != nil {
		m.Deferred.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementDropped(reason string) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementAttempt(channel, result string) {
	if m != nil {
		m.Attempts.WithLabelValues(channel, result).Inc()
	}
}

func (m *Metrics) ObserveDelivery(channel string, d time.Duration) {
	if m != nil {
		m.DeliveryLatency.WithLabelValues(channel).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementDigestFlush(frequency string) {
	if m != nil {
		m.DigestFlushes.WithLabelValues(frequency).Inc()
	}
}

func (m *Metrics) SetBreakerOpen(channel string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerOpen.WithLabelValues(channel).Set(v)
}

func (m *Metrics) AddQueueDepth(delta float64) {
	if m != nil {
		m.QueueDepth.Add(delta)
	}
}
