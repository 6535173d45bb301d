// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LifecycleTransitionsTotal counts supervisor state machine edges.
	LifecycleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_lifecycle_transitions_total",
		Help: "Total number of workload state transitions",
	}, []string{"from", "to"})

	// LifecycleRejectedTotal counts lifecycle operations refused before they started.
	LifecycleRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_lifecycle_rejected_total",
		Help: "Total number of rejected lifecycle operations by operation and reason",
	}, []string{"op", "reason"})

	// WorkloadsByState tracks how many workloads sit in each state.
	WorkloadsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mcfleet_workloads",
		Help: "Number of supervised workloads by state",
	}, []string{"state"})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_proc_terminate_total",
		Help: "Signals sent while force-terminating process groups",
	}, []string{"signal", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_proc_wait_total",
		Help: "Process exits observed during termination",
	}, []string{"outcome"})
)

// RecordTransition records a state change and moves the per-state gauge.
func RecordTransition(from, to string) {
	LifecycleTransitionsTotal.WithLabelValues(from, to).Inc()
	if from != "" {
		WorkloadsByState.WithLabelValues(from).Dec()
	}
	WorkloadsByState.WithLabelValues(to).Inc()
}

// ForgetWorkload removes a workload in the given state from the gauge.
func ForgetWorkload(state string) {
	WorkloadsByState.WithLabelValues(state).Dec()
}

// IncLifecycleRejected counts a refused lifecycle operation.
func IncLifecycleRejected(op, reason string) {
	LifecycleRejectedTotal.WithLabelValues(op, reason).Inc()
}

// IncProcTerminate counts a termination signal attempt.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait counts a process exit observed while terminating.
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}
