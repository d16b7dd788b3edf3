// Package metrics holds the process-wide Prometheus collectors. They register
// with the default registry on init and are served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fheguess"

var (
	// EventsTotal counts committed game notifications by kind.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "events_total",
			Help:      "Game notifications emitted after commit",
		},
		[]string{"kind"},
	)

	// RejectionsTotal counts rejected operations by error kind.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "rejections_total",
			Help:      "Operations rejected by the state machine",
		},
		[]string{"op", "reason"},
	)

	// OracleRequestsTotal counts decryption requests accepted by the oracle.
	OracleRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "requests_total",
			Help:      "Decryption requests accepted",
		},
	)

	// OraclePending is the number of requests not yet delivered.
	OraclePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "pending",
			Help:      "Decryption requests waiting for delivery",
		},
	)

	// OracleDeliveriesTotal counts delivery outcomes.
	// outcome: delivered, duplicate, rejected, failed
	OracleDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "deliveries_total",
			Help:      "Callback delivery outcomes",
		},
		[]string{"outcome"},
	)

	// OracleDeliveryDuration observes decrypt-sign-deliver latency.
	OracleDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "delivery_duration_seconds",
			Help:      "Time from job pickup to accepted callback",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
