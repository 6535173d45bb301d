// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConsoleLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_console_lines_total",
		Help: "Console output lines classified, by rule kind",
	}, []string{"kind"})

	ConsoleCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_console_commands_total",
		Help: "Console lines written to workload stdin, by result",
	}, []string{"result"})

	ConsoleRulesReloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_console_rules_reload_total",
		Help: "Console rule file reload attempts, by result",
	}, []string{"result"})
)

// IncConsoleLine counts one classified output line.
func IncConsoleLine(kind string) {
	ConsoleLinesTotal.WithLabelValues(kind).Inc()
}

// IncConsoleCommand counts one stdin write.
func IncConsoleCommand(result string) {
	ConsoleCommandsTotal.WithLabelValues(result).Inc()
}

// IncRulesReload counts one rules reload attempt.
func IncRulesReload(result string) {
	ConsoleRulesReloadTotal.WithLabelValues(result).Inc()
}
