// Package metrics exposes application-level prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics counts the billing-synchronizer outcomes an operator watches:
// webhook dispositions and checkout sessions.
type Metrics struct {
	webhookEvents    *prometheus.CounterVec
	checkoutSessions prometheus.Counter
}

const (
	OutcomeApplied   = "applied"
	OutcomeStale     = "stale"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeOrphaned  = "orphaned"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

func New() *Metrics {
	return &Metrics{
		webhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kindmind_billing_webhook_events_total",
			Help: "Webhook deliveries by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		checkoutSessions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kindmind_checkout_sessions_total",
			Help: "Checkout sessions created.",
		}),
	}
}

func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) RecordCheckoutSession() {
	if m == nil {
		return
	}
	m.checkoutSessions.Inc()
}

var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)
