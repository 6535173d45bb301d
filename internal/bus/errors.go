// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRoutable means no handler is registered for a request code.
	ErrNotRoutable = errors.New("bus: no handler registered")
	// ErrTimeout means no correlated reply arrived in time. The handler keeps running.
	ErrTimeout = errors.New("bus: request timed out")
	// ErrSchema means an event's arguments do not match the declared shape of its code.
	ErrSchema = errors.New("bus: schema violation")
	// ErrAlreadyRegistered means a request code already has its single handler.
	ErrAlreadyRegistered = errors.New("bus: handler already registered")
	// ErrClosed is returned once the bus has been closed.
	ErrClosed = errors.New("bus: closed")
)

// SchemaError describes which argument of which event violated the schema.
type SchemaError struct {
	Event  string
	Arg    string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("bus: schema violation: %s: %s", e.Event, e.Reason)
	}
	return fmt.Sprintf("bus: schema violation: %s.%s: %s", e.Event, e.Arg, e.Reason)
}

func (e *SchemaError) Unwrap() error {
	return ErrSchema
}

func schemaErr(event, arg, format string, args ...any) error {
	return &SchemaError{Event: event, Arg: arg, Reason: fmt.Sprintf(format, args...)}
}
