package forms

import "github.com/prometheus/client_golang/prometheus"

// Delivery outcomes recorded by Metrics.
const (
	OutcomeSent     = "sent"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Metrics counts form submissions by form and outcome. A nil *Metrics is a
// no-op.
type Metrics struct {
	submissions *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pubsite",
			Name:      "form_submissions_total",
			Help:      "Form submissions by form name and delivery outcome.",
		}, []string{"form", "outcome"}),
	}
	reg.MustRegister(m.submissions)
	return m
}

// Observe increments the counter for form and outcome.
func (m *Metrics) Observe(form, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(form, outcome).Inc()
}
