package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subbridge_webhook_outcomes_total",
			Help: "Webhook deliveries by provider and terminal outcome",
		},
		[]string{"provider", "outcome"},
	)

	ReconcileStrategyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subbridge_reconcile_strategy_total",
			Help: "Successful reconciliations by strategy",
		},
		[]string{"strategy"},
	)

	GrantsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subbridge_grants_total",
			Help: "Subscription grants committed",
		},
	)

	EvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subbridge_evictions_total",
			Help: "Removal attempts made by the membership enforcer",
		},
		[]string{"result"}, // ok, failed
	)

	EnforcerRunSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subbridge_enforcer_run_seconds",
			Help:    "Duration of membership enforcement runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)
)

// RecordWebhook counts one terminal webhook outcome.
func RecordWebhook(provider, outcome string) {
	WebhookOutcomesTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordGrant counts a committed grant and the strategy that produced it.
func RecordGrant(strategy string) {
	GrantsTotal.Inc()
	if strategy != "" {
		ReconcileStrategyTotal.WithLabelValues(strategy).Inc()
	}
}

// RecordEviction counts a single removal attempt.
func RecordEviction(ok bool) {
	if ok {
		EvictionsTotal.WithLabelValues("ok").Inc()
		return
	}
	EvictionsTotal.WithLabelValues("failed").Inc()
}
