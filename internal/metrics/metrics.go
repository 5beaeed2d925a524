package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccessDecisions counts policy decisions by action and outcome.
	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eeg_access_decisions_total",
			Help: "Access policy decisions on EEG records",
		},
		[]string{"action", "outcome"}, // outcome: allowed/denied
	)

	ShareTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eeg_share_transitions_total",
			Help: "Sharing request status transitions",
		},
		[]string{"from", "to"},
	)

	ShareConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eeg_share_conflicts_total",
			Help: "Sharing operations that lost an optimistic concurrency race or hit a duplicate",
		},
		[]string{"operation", "kind"},
	)

	SharesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eeg_shares_expired_total",
			Help: "Sharing requests materialized as expired by the sweep",
		},
	)

	ListDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eeg_list_visible_duration_seconds",
			Help:    "Time spent computing the visible record set",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func Outcome(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
