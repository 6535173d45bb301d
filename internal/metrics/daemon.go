// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mcfleet_build_info",
		Help: "Build information, value is always 1",
	}, []string{"version", "commit"})

	configValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcfleet_config_validation_errors_total",
		Help: "Configuration loads rejected by validation",
	})

	configReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_config_reloads_total",
		Help: "Configuration reload attempts by result",
	}, []string{"result"})

	catalogRefreshFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_catalog_refresh_failures_total",
		Help: "Scheduled catalog refreshes that failed, by stage",
	}, []string{"stage"})

	autostartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_autostart_total",
		Help: "Workloads started at boot, by result",
	}, []string{"result"})

	daemonReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mcfleet_daemon_ready",
		Help: "1 once the daemon finished bootstrapping, 0 while starting or stopping",
	})
)

// SetBuildInfo publishes the running build.
func SetBuildInfo(version, commit string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit).Set(1)
}

func IncConfigValidationError()             { configValidationErrors.Inc() }
func IncConfigReload(result string)         { configReloadsTotal.WithLabelValues(result).Inc() }
func IncCatalogRefreshFailure(stage string) { catalogRefreshFailures.WithLabelValues(stage).Inc() }
func IncAutostart(result string)            { autostartTotal.WithLabelValues(result).Inc() }

// SetDaemonReady flips the readiness gauge.
func SetDaemonReady(ready bool) {
	if ready {
		daemonReady.Set(1)
		return
	}
	daemonReady.Set(0)
}
