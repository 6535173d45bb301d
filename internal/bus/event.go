// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import "time"

// Args holds an event's named arguments.
type Args map[string]any

// Event is one message on the bus.
type Event struct {
	Code        Code
	Name        string // filled from the catalog during validation
	Args        Args
	Time        time.Time
	Correlation string // request and reply codes only
}

// NewEvent builds an event stamped with the current time.
func NewEvent(code Code, args Args) Event {
	if args == nil {
		args = Args{}
	}
	return Event{Code: code, Args: args, Time: time.Now()}
}

// Str returns a string argument or "" when absent.
func (e Event) Str(name string) string {
	s, _ := e.Args[name].(string)
	return s
}

// Int returns an integer argument or 0 when absent.
func (e Event) Int(name string) int64 {
	switch n := e.Args[name].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	}
	return 0
}

// Bool returns a boolean argument or false when absent.
func (e Event) Bool(name string) bool {
	b, _ := e.Args[name].(bool)
	return b
}

// Value returns the raw argument.
func (e Event) Value(name string) any {
	return e.Args[name]
}

// ServerName is shorthand for the workload name argument.
func (e Event) ServerName() string {
	return e.Str(ArgServerName)
}

// Result is the single argument of a reply event.
func (e Event) Result() any {
	return e.Args[ArgResult]
}

func (e Event) clone() Event {
	args := make(Args, len(e.Args))
	for k, v := range e.Args {
		args[k] = v
	}
	e.Args = args
	return e
}
