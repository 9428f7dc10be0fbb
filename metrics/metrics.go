package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the core escrow/dispute flow. Registered on the default
// registry; exposed by the API server at /metrics.
var (
	EscrowsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "escrowflow",
		Name:      "escrows_created_total",
		Help:      "Escrow records created.",
	})

	EscrowsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "escrowflow",
		Name:      "escrows_completed_total",
		Help:      "Escrows completed after both confirmations.",
	})

	DisputesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "escrowflow",
		Name:      "disputes_opened_total",
		Help:      "Disputes opened, directly or from an escrow.",
	})

	DisputesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowflow",
		Name:      "disputes_resolved_total",
		Help:      "Disputes resolved, labelled by winning side.",
	}, []string{"side"})

	VotesCast = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "escrowflow",
		Name:      "votes_cast_total",
		Help:      "Juror votes accepted.",
	})

	ReputationUpdateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "escrowflow",
		Name:      "reputation_update_failures_total",
		Help:      "Best-effort reputation updates that failed and were logged.",
	})
)
