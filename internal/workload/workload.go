// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package workload holds the types shared by the registry and the supervisor.
package workload

import (
	"regexp"
	"time"
)

// State is a workload's lifecycle state.
type State string

const (
	Stopped  State = "STOPPED"
	Starting State = "STARTING"
	Running  State = "RUNNING"
	Stopping State = "STOPPING"
	Crashed  State = "CRASHED"
)

// Live reports whether a process exists in this state.
func (s State) Live() bool {
	return s == Starting || s == Running || s == Stopping
}

// NamePattern is the rule every workload name must satisfy.
var NamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidName reports whether name satisfies NamePattern.
func ValidName(name string) bool {
	return NamePattern.MatchString(name)
}

// Workload is the persisted definition of one game server.
type Workload struct {
	Name          string    `json:"name" yaml:"name"`
	Path          string    `json:"path" yaml:"path"`
	EngineVersion string    `json:"engine_version" yaml:"engine_version"`
	LoaderKind    string    `json:"loader_kind" yaml:"loader_kind"`
	LoaderVersion string    `json:"loader_version,omitempty" yaml:"loader_version,omitempty"`
	MemoryMB      int       `json:"memory_mb" yaml:"memory_mb"`
	Autostart     bool      `json:"autostart" yaml:"autostart"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}

// Status is the live view of a workload owned by its supervisor.
type Status struct {
	State     State     `json:"state"`
	Forced    bool      `json:"forced"`
	ExitCode  int       `json:"exit_code"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Busy      bool      `json:"busy"`
}
