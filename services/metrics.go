package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	compensationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_service_compensation_failures_total",
			Help: "Compensating actions that still failed after retries and need manual reconciliation",
		},
		[]string{"step"},
	)

	placementOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_service_placement_outcomes_total",
			Help: "Order placement attempts by outcome code",
		},
		[]string{"path", "outcome"},
	)
)
