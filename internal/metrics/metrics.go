// Package metrics registers the gateway's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capi_webhooks_received_total",
		Help: "Inbound webhooks by outcome (admitted, ignored, rejected, auth_failed).",
	}, []string{"outcome"})

	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capi_events_dispatched_total",
		Help: "Per-pixel dispatch attempts by delivery status.",
	}, []string{"pixel_id", "status"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capi_dispatch_duration_seconds",
		Help:    "Wall time of a full fan-out, all destinations included.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	DuplicateDeposits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capi_duplicate_deposits_total",
		Help: "Deposit webhooks dropped by transaction-id dedup.",
	})
)
