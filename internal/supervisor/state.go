// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"github.com/ManuGH/mcfleet/internal/fsm"
	"github.com/ManuGH/mcfleet/internal/workload"
)

type lifecycleEvent string

const (
	evStart lifecycleEvent = "start"
	evReady lifecycleEvent = "ready"
	evStop  lifecycleEvent = "stop"
	evExit  lifecycleEvent = "exit"
	evCrash lifecycleEvent = "crash"
)

type transition = fsm.Transition[workload.State, lifecycleEvent]

var lifecycleTable = []transition{
	{From: workload.Stopped, Event: evStart, To: workload.Starting},
	{From: workload.Crashed, Event: evStart, To: workload.Starting},
	{From: workload.Starting, Event: evReady, To: workload.Running},
	{From: workload.Starting, Event: evStop, To: workload.Stopping},
	{From: workload.Running, Event: evStop, To: workload.Stopping},
	{From: workload.Stopping, Event: evExit, To: workload.Stopped},
	{From: workload.Starting, Event: evCrash, To: workload.Crashed},
	{From: workload.Running, Event: evCrash, To: workload.Crashed},
	// Exit 0 after the stop marker, e.g. an operator typed "stop".
	{From: workload.Running, Event: evExit, To: workload.Stopped},
}

func newMachine() *fsm.Machine[workload.State, lifecycleEvent] {
	return fsm.MustNew(workload.Stopped, lifecycleTable)
}
