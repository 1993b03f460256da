package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	swapsOriginated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "swaps_originated_total",
		Help:      "Swaps originated through the dispatcher, by origin chain.",
	}, []string{"origin"})

	swapsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "swaps_accepted_total",
		Help:      "Waiting swaps matched through the dispatcher, by origin chain.",
	}, []string{"origin"})

	swapTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "swap_transitions_total",
		Help:      "Registry state transitions, by resulting state.",
	}, []string{"state"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "request_failures_total",
		Help:      "Failed API operations, by operation.",
	}, []string{"operation"})
)
