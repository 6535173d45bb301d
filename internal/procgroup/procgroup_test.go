// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) (*exec.Cmd, chan struct{}) {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	return cmd, exited
}

func TestSetMakesGroupLeader(t *testing.T) {
	cmd, exited := startGroup(t, "sleep 10")
	t.Cleanup(func() { _ = Kill(cmd, syscall.SIGKILL); <-exited })

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	require.NoError(t, err)
	assert.Equal(t, cmd.Process.Pid, pgid, "process should be group leader")
}

func TestTerminateStopsOnSIGTERM(t *testing.T) {
	cmd, exited := startGroup(t, "sleep 10 & sleep 10")
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, Terminate(cmd, exited, 2*time.Second))

	time.Sleep(50 * time.Millisecond)
	err := syscall.Kill(-cmd.Process.Pid, syscall.Signal(0))
	assert.ErrorIs(t, err, syscall.ESRCH, "process group should be gone")
}

func TestTerminateEscalatesToSIGKILL(t *testing.T) {
	cmd, exited := startGroup(t, "trap '' TERM; while true; do sleep 1; done")
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, Terminate(cmd, exited, 200*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestTerminateNilCommand(t *testing.T) {
	require.NoError(t, Terminate(nil, nil, time.Millisecond))
	require.NoError(t, Kill(nil, syscall.SIGTERM))
}
