package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsInitiatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Total number of payment initiations",
	}, []string{"provider"})

	PaymentsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_settled_total",
		Help: "Total number of transactions reaching a terminal status",
	}, []string{"status"})

	CallbacksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_callbacks_received_total",
		Help: "Total number of inbound M-Pesa callbacks",
	}, []string{"outcome"})

	CallbacksDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpesa_callbacks_duplicate_total",
		Help: "Callbacks acknowledged without mutation because the transaction was already terminal",
	})

	EnrollmentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_created_total",
		Help: "Total number of enrollments created by settlement",
	})

	RateLookupFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rate_lookup_fallback_total",
		Help: "Exchange-rate lookups that degraded to the hard-coded fallback",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
