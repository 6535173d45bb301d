// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_bus_published_total",
		Help: "Total number of events accepted by the bus",
	}, []string{"code"})

	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_bus_dropped_total",
		Help: "Total number of per-subscriber event drops by code and reason",
	}, []string{"code", "reason"})

	BusRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_bus_requests_total",
		Help: "Total number of bus requests by code and outcome",
	}, []string{"code", "outcome"})

	BusRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcfleet_bus_request_duration_seconds",
		Help:    "Time callers spent waiting for a correlated reply",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2.5, 12),
	}, []string{"code"})
)

// IncBusDrop records a dropped bus event for the given code name.
func IncBusDrop(code string) {
	IncBusDropReason(code, "full")
}

// IncBusDropReason records a dropped bus event with a concrete reason.
func IncBusDropReason(code, reason string) {
	if code == "" {
		code = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(code, reason).Inc()
}

// ObserveBusRequest records the outcome of a request/reply round trip.
func ObserveBusRequest(code, outcome string, seconds float64) {
	BusRequestsTotal.WithLabelValues(code, outcome).Inc()
	BusRequestDuration.WithLabelValues(code).Observe(seconds)
}
