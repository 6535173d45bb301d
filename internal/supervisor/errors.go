// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy means another lifecycle operation holds the workload. Retryable.
	ErrBusy = errors.New("supervisor: operation in progress")
	// ErrAlreadyRunning rejects a start on a running workload.
	ErrAlreadyRunning = errors.New("supervisor: already running")
	// ErrNotRunning rejects stop or console input on a workload without a process.
	ErrNotRunning = errors.New("supervisor: not running")
	// ErrNotStopped rejects delete or rename while a process exists.
	ErrNotStopped = errors.New("supervisor: workload is not stopped")
	// ErrNotFound means no supervisor exists under the name.
	ErrNotFound = errors.New("supervisor: not found")
	// ErrExists rejects adding or renaming onto a taken name.
	ErrExists = errors.New("supervisor: name already in use")
	// ErrStaleName means the workload was renamed or removed while the
	// caller still held the old identity.
	ErrStaleName = errors.New("supervisor: stale workload name")
	// ErrNoCommand means no launch command is configured for the loader kind.
	ErrNoCommand = errors.New("supervisor: no launch command")
)

// ProcessError describes a spawn failure or an unexpected exit. It is
// reported through server.crashed and the log, never to lifecycle callers.
type ProcessError struct {
	Op       string
	ExitCode int
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: exit code %d", e.Op, e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }
