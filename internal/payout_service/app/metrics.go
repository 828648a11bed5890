package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	payoutStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_status_transitions_total",
		Help: "Payout status transitions by from/to status.",
	}, []string{"from", "to"})

	payoutSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_submissions_total",
		Help: "Payout submissions accepted or rejected, by outcome.",
	}, []string{"outcome"})

	railErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_rail_errors_total",
		Help: "Rail failures by rail and class.",
	}, []string{"rail", "class"})

	payoutAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_confirmed_amount_total",
		Help: "Confirmed payout volume in minor units, by currency.",
	}, []string{"currency"})
)
