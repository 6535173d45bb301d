// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/ManuGH/mcfleet/internal/metrics"
)

// Terminate force-stops a process group.
// It sends SIGTERM, waits for exited to close, and if the group is still alive
// after grace, sends SIGKILL and waits up to grace again.
// The caller owns cmd.Wait; exited must be closed once Wait has returned.
// It is safe to call on nil commands (returns nil).
func Terminate(cmd *exec.Cmd, exited <-chan struct{}, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	signal(cmd, syscall.SIGTERM)

	select {
	case <-exited:
		metrics.IncProcWait("sigterm")
		return nil
	case <-time.After(grace):
	}

	signal(cmd, syscall.SIGKILL)

	select {
	case <-exited:
		metrics.IncProcWait("sigkill")
		return nil
	case <-time.After(grace):
		metrics.IncProcWait("stuck")
		return ErrKillFailed
	}
}

func signal(cmd *exec.Cmd, sig syscall.Signal) {
	name := "SIGTERM"
	if sig == syscall.SIGKILL {
		name = "SIGKILL"
	}
	err := Kill(cmd, sig)
	switch {
	case err == nil:
		metrics.IncProcTerminate(name, "sent")
	case errors.Is(err, syscall.ESRCH) || strings.Contains(err.Error(), "process already finished"):
		metrics.IncProcTerminate(name, "esrch")
	default:
		metrics.IncProcTerminate(name, "error")
	}
}
