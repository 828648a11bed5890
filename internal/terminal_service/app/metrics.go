package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminal_transaction_transitions_total",
		Help: "Transaction state transitions by from/to state.",
	}, []string{"from", "to"})

	declinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminal_transaction_declines_total",
		Help: "Declined transactions by reason.",
	}, []string{"reason"})

	upstreamMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminal_upstream_messages_total",
		Help: "Messages exchanged with the upstream processor by MTI and direction.",
	}, []string{"mti", "direction"})

	discardedResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminal_discarded_responses_total",
		Help: "Upstream responses dropped without effect, by cause.",
	}, []string{"cause"})

	sweptCorrelationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terminal_swept_correlations_total",
		Help: "Pending correlations expired by the timeout sweeper.",
	})

	offlineQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terminal_offline_queued_total",
		Help: "Authorizations routed to the offline queue.",
	})

	pendingCorrelations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "terminal_pending_correlations",
		Help: "In-flight request/response correlations.",
	})
)
