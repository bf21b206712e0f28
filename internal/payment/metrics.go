package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters exported by the payment flows. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	preferences *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	overdue     prometheus.Counter
}

// NewMetrics registers the payment counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		preferences: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_preferences_created_total",
			Help: "Checkout preferences created, by entity kind and gateway mode.",
		}, []string{"kind", "mode"}),
		webhooks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_webhooks_total",
			Help: "Webhook notifications handled, by outcome.",
		}, []string{"outcome"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_state_transitions_total",
			Help: "Membership and enrollment state transitions.",
		}, []string{"entity", "to"}),
		overdue: factory.NewCounter(prometheus.CounterOpts{
			Name: "payments_memberships_marked_overdue_total",
			Help: "Memberships moved to Overdue by the sweep.",
		}),
	}
}

func (m *Metrics) preferenceCreated(kind string, mock bool) {
	if m == nil {
		return
	}
	mode := "real"
	if mock {
		mode = "mock"
	}
	m.preferences.WithLabelValues(kind, mode).Inc()
}

func (m *Metrics) webhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) transition(entity, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, to).Inc()
}

func (m *Metrics) markedOverdue(n int) {
	if m == nil || n == 0 {
		return
	}
	m.overdue.Add(float64(n))
}
