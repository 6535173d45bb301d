// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by every span mcfleet records.
const (
	// Bus attributes
	BusCodeKey        = "bus.code"
	BusNameKey        = "bus.name"
	BusCorrelationKey = "bus.correlation"
	BusOutcomeKey     = "bus.outcome"

	// Workload attributes
	WorkloadNameKey  = "workload.name"
	WorkloadStateKey = "workload.state"

	// Catalog attributes
	CatalogKeyKey   = "catalog.key"
	CatalogStaleKey = "catalog.stale"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// BusRequestAttributes describes one request/reply exchange.
func BusRequestAttributes(code, name, correlation, workload string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(BusCodeKey, code),
		attribute.String(BusNameKey, name),
		attribute.String(BusCorrelationKey, correlation),
	}
	if workload != "" {
		attrs = append(attrs, attribute.String(WorkloadNameKey, workload))
	}
	return attrs
}

// CatalogAttributes describes a catalog lookup.
func CatalogAttributes(key string, stale bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CatalogKeyKey, key),
		attribute.Bool(CatalogStaleKey, stale),
	}
}

// ErrorAttributes marks a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
