package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation passes
	SyncPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesniper_sync_passes_total",
			Help: "Total number of compile-and-replace passes by trigger and outcome",
		},
		[]string{"trigger", "status"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sitesniper_sync_duration_seconds",
			Help:    "Duration of compile-and-replace passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Current state
	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitesniper_rules_loaded",
			Help: "Number of rules in the current snapshot",
		},
	)

	DirectivesInstalled = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sitesniper_directives_installed",
			Help: "Number of directives held by the sink, by action",
		},
		[]string{"action"},
	)

	// Load failures keep the previous snapshot
	RuleLoadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitesniper_rule_load_failures_total",
			Help: "Total number of failed rule loads",
		},
	)

	// Live decisions
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesniper_decisions_total",
			Help: "Total number of live URL decisions by source and outcome",
		},
		[]string{"source", "outcome"},
	)
)

// Outcome label for a decision
func Outcome(blocked bool) string {
	if blocked {
		return "blocked"
	}
	return "allowed"
}
