package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Domain counters. HTTP-level metrics live in the middleware package.
var (
	ReportTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_transitions_total",
			Help: "Report lifecycle transitions, by source and target status.",
		},
		[]string{"from", "to"},
	)

	CreditsMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_moved_total",
			Help: "Credits added to or removed from accounts, by ledger entry type.",
		},
		[]string{"type"},
	)

	ProviderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_failures_total",
			Help: "Failed inference calls, by operation and whether the provider was overloaded.",
		},
		[]string{"operation", "overloaded"},
	)

	EnrichmentLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_cache_lookups_total",
			Help: "Derived image lookups, by variant and result (hit, miss).",
		},
		[]string{"variant", "result"},
	)

	Webhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Payment webhook deliveries, by outcome.",
		},
		[]string{"outcome"},
	)

	RecoveryActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_actions_total",
			Help: "Actions taken by the recovery sweeper.",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(
		ReportTransitions,
		CreditsMoved,
		ProviderFailures,
		EnrichmentLookups,
		Webhooks,
		RecoveryActions,
	)
}
