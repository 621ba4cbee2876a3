package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared across the application.
type Metrics struct {
	ApplicationsSubmitted prometheus.Counter
	ApplicationsApproved  prometheus.Counter
	ApplicationsRejected  prometheus.Counter
	TransfersCompleted    prometheus.Counter
	DisputesFiled         prometheus.Counter
	DisputesResolved      prometheus.Counter
	AuditDropped          prometheus.Counter
	NotificationsDropped  prometheus.Counter

	RequestLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ApplicationsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landregistry_applications_submitted_total",
			Help: "Total number of property applications submitted",
		}),
		ApplicationsApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landregistry_applications_approved_total",
			Help: "Total number of property applications approved",
		}),
		ApplicationsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landregistry_applications_rejected_total",
			Help: "Total number of property applications rejected",
		}),
		TransfersCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landregistry_transfers_completed_total",
			Help: "Total number of ownership transfers completed",
		}),
		DisputesFiled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landregistry_disputes_filed_total",
			Help: "Total number of disputes filed",
		}),
		DisputesResolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landregistry_disputes_resolved_total",
			Help: "Total number of disputes resolved",
		}),
		AuditDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landregistry_audit_entries_dropped_total",
			Help: "Audit entries that failed to persist (transition still succeeded)",
		}),
		NotificationsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landregistry_notifications_dropped_total",
			Help: "Transition notifications dropped after local retry",
		}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landregistry_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// IncAuditDropped satisfies audit.DropCounter.
func (m *Metrics) IncAuditDropped() {
	m.AuditDropped.Inc()
}

// IncNotificationsDropped records a dropped transition notification.
func (m *Metrics) IncNotificationsDropped() {
	m.NotificationsDropped.Inc()
}

// ObserveRequest records one HTTP request observation.
func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	m.RequestLatency.WithLabelValues(route, status).Observe(seconds)
}
