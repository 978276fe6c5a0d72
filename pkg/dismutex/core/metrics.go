package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokenRequestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dismutex_token_requests_sent_total",
		Help: "Token requests broadcast to other peers.",
	})

	tokenRequestsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dismutex_token_requests_received_total",
		Help: "Token requests received from other peers.",
	})

	tokenHandoffs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dismutex_token_handoffs_total",
		Help: "Successful token transfers to another peer.",
	})

	tokenHandoffFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dismutex_token_handoff_failures_total",
		Help: "Hand-off attempts rolled back after a transport failure.",
	})

	inboundRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dismutex_inbound_requests_total",
		Help: "Inbound RPC invocations by method.",
	}, []string{"method"})
)
