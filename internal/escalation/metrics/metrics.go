package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the escalation module.
type Metrics struct {
	// Escalations created by context and severity
	Created *prometheus.CounterVec

	// Level transitions by action (AUTO_ESCALATE / MANUAL_ESCALATE) and target level
	Escalated *prometheus.CounterVec

	Resolved prometheus.Counter

	// Rejected mutations by operation and error code
	Rejected *prometheus.CounterVec

	// Optimistic concurrency retries against the store
	ConflictRetries prometheus.Counter

	OperationLatency *prometheus.HistogramVec
}

// New creates the escalation metrics on reg. A nil registerer leaves the
// collectors unregistered, which keeps tests independent of the global registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Created: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safecircle_escalations_created_total",
			Help: "Total escalations created by context and severity",
		}, []string{"context", "severity"}),

		Escalated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safecircle_escalations_escalated_total",
			Help: "Total level transitions by action and target level",
		}, []string{"action", "level"}),

		Resolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "safecircle_escalations_resolved_total",
			Help: "Total escalations resolved",
		}),

		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safecircle_escalation_rejections_total",
			Help: "Total rejected escalation mutations by operation and error code",
		}, []string{"operation", "code"}),

		ConflictRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "safecircle_escalation_conflict_retries_total",
			Help: "Total saves retried after a stale version conflict",
		}),

		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safecircle_escalation_operation_duration_seconds",
			Help:    "Duration of escalation facade operations including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementCreated(context, severity string) {
	if m != nil {
		m.Created.WithLabelValues(context, severity).Inc()
	}
}

func (m *Metrics) IncrementEscalated(action, level string) {
	if m != nil {
		m.Escalated.WithLabelValues(action, level).Inc()
	}
}

func (m *Metrics) IncrementResolved() {
	if m != nil {
		m.Resolved.Inc()
	}
}

func (m *Metrics) IncrementRejected(operation, code string) {
	if m != nil {
		m.Rejected.WithLabelValues(operation, code).Inc()
	}
}

func (m *Metrics) IncrementConflictRetry() {
	if m != nil {
		m.ConflictRetries.Inc()
	}
}

func (m *Metrics) ObserveOperation(operation string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}
