// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CatalogFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_catalog_fetch_total",
		Help: "Upstream version catalog fetches by kind and result",
	}, []string{"kind", "result"})

	CatalogServedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcfleet_catalog_served_total",
		Help: "Version catalog lookups by kind and freshness (cache, fresh, stale)",
	}, []string{"kind", "freshness"})
)

// IncCatalogFetch counts an upstream fetch.
func IncCatalogFetch(kind, result string) {
	CatalogFetchTotal.WithLabelValues(kind, result).Inc()
}

// IncCatalogServed counts a resolver lookup.
func IncCatalogServed(kind, freshness string) {
	CatalogServedTotal.WithLabelValues(kind, freshness).Inc()
}
