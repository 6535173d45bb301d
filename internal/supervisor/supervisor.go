// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package supervisor owns the OS process of each workload. A Supervisor
// drives one workload through its lifecycle state machine, attaches a
// console bridge to the live process and reports every transition on the
// bus. A Fleet maps workload names to supervisors.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/mcfleet/internal/bus"
	"github.com/ManuGH/mcfleet/internal/console"
	"github.com/ManuGH/mcfleet/internal/fsm"
	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/metrics"
	"github.com/ManuGH/mcfleet/internal/procgroup"
	"github.com/ManuGH/mcfleet/internal/workload"
)

const (
	DefaultStopGrace    = 30 * time.Second
	DefaultKillGrace    = 5 * time.Second
	DefaultDrainTimeout = 2 * time.Second
	DefaultCrashLines   = 20
)

// Options apply to every supervisor of a fleet.
type Options struct {
	Launcher Launcher

	// StopGrace bounds how long a stop waits for a clean exit before the
	// process group is terminated.
	StopGrace time.Duration
	// KillGrace is the SIGTERM to SIGKILL escalation delay.
	KillGrace   time.Duration
	StopCommand string
	// DrainTimeout bounds how long stdout may stay open after the leader
	// exited, e.g. when a descendant inherited it.
	DrainTimeout time.Duration
	CrashLines   int

	Rules        console.RuleSource
	HistoryLines int
	CommandRate  rate.Limit
	CommandBurst int
}

func (o Options) withDefaults() Options {
	if o.Launcher.Commands == nil {
		o.Launcher.Commands = DefaultCommands()
	}
	if o.StopGrace <= 0 {
		o.StopGrace = DefaultStopGrace
	}
	if o.KillGrace <= 0 {
		o.KillGrace = DefaultKillGrace
	}
	if o.StopCommand == "" {
		o.StopCommand = console.StopCommand
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.CrashLines <= 0 {
		o.CrashLines = DefaultCrashLines
	}
	return o
}

type process struct {
	cmd    *exec.Cmd
	bridge *console.Bridge
	stdout *os.File
	// exited closes once cmd.Wait returned.
	exited chan struct{}
	// finished closes once the exit was turned into a state transition.
	finished chan struct{}
	forced   atomic.Bool
}

// Supervisor serializes lifecycle operations for one workload.
type Supervisor struct {
	opts Options
	pub  console.Publisher
	// slot admits one lifecycle operation at a time.
	slot chan struct{}

	mu        sync.Mutex
	def       workload.Workload
	machine   *fsm.Machine[workload.State, lifecycleEvent]
	proc      *process
	forced    bool
	exitCode  int
	startedAt time.Time
	history   []string
	retired   bool
}

// New returns a supervisor in STOPPED. pub receives lifecycle and console
// notifications.
func New(def workload.Workload, pub console.Publisher, opts Options) *Supervisor {
	s := &Supervisor{
		opts:    opts.withDefaults(),
		pub:     pub,
		slot:    make(chan struct{}, 1),
		def:     def,
		machine: newMachine(),
	}
	s.machine.Observe(s.observe)
	metrics.RecordTransition("", string(workload.Stopped))
	return s
}

// Name returns the workload's current name.
func (s *Supervisor) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.def.Name
}

// Definition returns a copy of the workload definition.
func (s *Supervisor) Definition() workload.Workload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.def
}

// Status returns the live state. It never waits for a lifecycle operation.
func (s *Supervisor) Status() workload.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := workload.Status{
		State:     s.machine.State(),
		Forced:    s.forced,
		ExitCode:  s.exitCode,
		StartedAt: s.startedAt,
		Busy:      len(s.slot) > 0,
	}
	if s.proc != nil && s.proc.cmd.Process != nil {
		st.PID = s.proc.cmd.Process.Pid
	}
	return st
}

// History returns up to n recent console lines of the live process, or of
// the last one if none is running.
func (s *Supervisor) History(n int) []string {
	s.mu.Lock()
	p, last := s.proc, s.history
	s.mu.Unlock()
	if p != nil {
		return p.bridge.History(n)
	}
	if n <= 0 || n > len(last) {
		n = len(last)
	}
	return append([]string(nil), last[len(last)-n:]...)
}

// Start spawns the process and returns once it is STARTING. A spawn
// failure lands in CRASHED and is reported on the bus, not returned.
func (s *Supervisor) Start(ctx context.Context) error { return s.start(ctx, "") }

// Stop asks the process to exit and waits until it did or was terminated
// after the stop grace. It reports whether the workload ended STOPPED.
// Cancelling ctx ends the wait; the stop itself carries on.
func (s *Supervisor) Stop(ctx context.Context) (bool, error) { return s.stop(ctx, "") }

// Restart stops a running process and starts it again under one operation.
// From STOPPED or CRASHED it is a plain start.
func (s *Supervisor) Restart(ctx context.Context) (bool, error) { return s.restart(ctx, "") }

// Send writes one line to the console of a STARTING or RUNNING process.
func (s *Supervisor) Send(ctx context.Context, line string) error { return s.send(ctx, "", line) }

func (s *Supervisor) start(ctx context.Context, expect string) error {
	release, err := s.acquire("start", expect)
	if err != nil {
		return err
	}
	defer release()
	return s.launch(ctx, "start")
}

func (s *Supervisor) stop(ctx context.Context, expect string) (bool, error) {
	release, err := s.acquire("stop", expect)
	if err != nil {
		return false, err
	}
	p, err := s.beginStop(ctx, "stop")
	if err != nil {
		release()
		return false, err
	}

	// The outcome is read while the slot is still held so a start that
	// follows the release cannot change it.
	done := make(chan bool, 1)
	go func() {
		s.drive(p)
		stopped := s.Status().State == workload.Stopped
		release()
		done <- stopped
	}()

	select {
	case stopped := <-done:
		return stopped, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *Supervisor) restart(ctx context.Context, expect string) (bool, error) {
	release, err := s.acquire("restart", expect)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	state := s.machine.State()
	s.mu.Unlock()
	if state == workload.Starting || state == workload.Stopping {
		release()
		metrics.IncLifecycleRejected("restart", "busy")
		return false, ErrBusy
	}

	var p *process
	if state == workload.Running {
		p, err = s.beginStop(ctx, "restart")
	}
	// The process may have exited between the two checks.
	if p == nil && (err == nil || errors.Is(err, ErrNotRunning)) {
		defer release()
		if err := s.launch(ctx, "restart"); err != nil {
			return false, err
		}
		return s.Status().State.Live(), nil
	}
	if err != nil {
		release()
		return false, err
	}

	type outcome struct {
		live bool
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		s.drive(p)
		err := s.launch(context.Background(), "restart")
		live := s.Status().State.Live()
		release()
		done <- outcome{live: live, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return false, out.err
		}
		return out.live, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Players lists the players online on a STARTING or RUNNING process.
func (s *Supervisor) Players() ([]string, error) { return s.players("") }

// Seed asks a STARTING or RUNNING process for its world seed.
func (s *Supervisor) Seed(ctx context.Context) (string, error) { return s.seed(ctx, "") }

func (s *Supervisor) send(ctx context.Context, expect, line string) error {
	p, err := s.live(expect)
	if err != nil {
		return err
	}
	return p.bridge.Send(ctx, line)
}

func (s *Supervisor) players(expect string) ([]string, error) {
	p, err := s.live(expect)
	if err != nil {
		return nil, err
	}
	return p.bridge.Players(), nil
}

func (s *Supervisor) seed(ctx context.Context, expect string) (string, error) {
	p, err := s.live(expect)
	if err != nil {
		return "", err
	}
	return p.bridge.Seed(ctx)
}

// live returns the process of a STARTING or RUNNING workload.
func (s *Supervisor) live(expect string) (*process, error) {
	s.mu.Lock()
	stale := s.retired || (expect != "" && s.def.Name != expect)
	p, state := s.proc, s.machine.State()
	s.mu.Unlock()
	if stale {
		return nil, ErrStaleName
	}
	if p == nil || (state != workload.Starting && state != workload.Running) {
		return nil, ErrNotRunning
	}
	return p, nil
}

// reserve holds the operation slot of an idle workload for delete or
// rename.
func (s *Supervisor) reserve(op, expect string) (func(), error) {
	release, err := s.acquire(op, expect)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	state := s.machine.State()
	s.mu.Unlock()
	if state.Live() {
		release()
		metrics.IncLifecycleRejected(op, "not_stopped")
		return nil, ErrNotStopped
	}
	return release, nil
}

func (s *Supervisor) acquire(op, expect string) (func(), error) {
	select {
	case s.slot <- struct{}{}:
	default:
		metrics.IncLifecycleRejected(op, "busy")
		return nil, ErrBusy
	}
	release := sync.OnceFunc(func() { <-s.slot })

	s.mu.Lock()
	stale := s.retired || (expect != "" && s.def.Name != expect)
	s.mu.Unlock()
	if stale {
		release()
		metrics.IncLifecycleRejected(op, "stale")
		return nil, ErrStaleName
	}
	return release, nil
}

// launch moves STOPPED/CRASHED to STARTING and spawns the process. The
// caller holds the operation slot.
func (s *Supervisor) launch(ctx context.Context, op string) error {
	s.mu.Lock()
	switch s.machine.State() {
	case workload.Running:
		s.mu.Unlock()
		metrics.IncLifecycleRejected(op, "already_running")
		return ErrAlreadyRunning
	case workload.Starting, workload.Stopping:
		s.mu.Unlock()
		metrics.IncLifecycleRejected(op, "busy")
		return ErrBusy
	}
	if _, err := s.machine.Fire(ctx, evStart); err != nil {
		s.mu.Unlock()
		return err
	}
	s.forced, s.exitCode = false, 0
	def := s.def
	s.publishLocked(bus.ServerStarting, nil)
	s.mu.Unlock()

	p, err := s.spawn(def)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.crashLocked(&ProcessError{Op: "spawn", ExitCode: -1, Err: err}, nil)
		return nil
	}
	s.proc = p
	s.startedAt = time.Now()
	logger := s.loggerLocked()
	logger.Info().
		Str(log.FieldEvent, "supervisor.spawned").
		Int(log.FieldPID, p.cmd.Process.Pid).
		Strs("args", p.cmd.Args).
		Msg("workload process spawned")

	p.bridge.Start()
	go s.monitor(p)
	return nil
}

func (s *Supervisor) spawn(def workload.Workload) (*process, error) {
	cmd, err := s.opts.Launcher.Command(def)
	if err != nil {
		return nil, err
	}
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		_ = inR.Close()
		_ = inW.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = outW

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{inR, inW, outR, outW} {
			_ = f.Close()
		}
		return nil, err
	}
	// The child holds its own copies of these ends.
	_ = inR.Close()
	_ = outW.Close()

	p := &process{
		cmd:      cmd,
		stdout:   outR,
		exited:   make(chan struct{}),
		finished: make(chan struct{}),
	}
	p.bridge = console.NewBridge(console.Config{
		Name:         def.Name,
		Rules:        s.opts.Rules,
		HistoryLines: s.opts.HistoryLines,
		CommandRate:  s.opts.CommandRate,
		CommandBurst: s.opts.CommandBurst,
		OnStarted:    func() { s.ready(p) },
	}, inW, outR, s.pub)
	return p, nil
}

func (s *Supervisor) ready(p *process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != p || s.machine.State() != workload.Starting {
		return
	}
	if _, err := s.machine.Fire(context.Background(), evReady); err != nil {
		return
	}
	s.publishLocked(bus.ServerStarted, nil)
}

// beginStop moves a live workload to STOPPING.
func (s *Supervisor) beginStop(ctx context.Context, op string) (*process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil || !s.machine.Can(evStop) {
		metrics.IncLifecycleRejected(op, "not_running")
		return nil, ErrNotRunning
	}
	if _, err := s.machine.Fire(ctx, evStop); err != nil {
		return nil, err
	}
	s.publishLocked(bus.ServerStopping, nil)
	return s.proc, nil
}

// drive sends the stop command, escalates after the grace period and
// returns once the exit was recorded.
func (s *Supervisor) drive(p *process) {
	s.mu.Lock()
	logger := s.loggerLocked()
	s.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(context.Background(), s.opts.StopGrace)
	sendErr := p.bridge.Send(sendCtx, s.opts.StopCommand)
	cancel()

	timer := time.NewTimer(s.opts.StopGrace)
	defer timer.Stop()
	if sendErr != nil {
		logger.Warn().Err(sendErr).Str(log.FieldEvent, "supervisor.stop_command_failed").Msg("stop command not delivered")
		timer.Reset(0)
	}

	select {
	case <-p.exited:
	case <-timer.C:
		p.forced.Store(true)
		logger.Warn().
			Str(log.FieldEvent, "supervisor.forced_stop").
			Dur("grace", s.opts.StopGrace).
			Int(log.FieldPID, p.cmd.Process.Pid).
			Msg("stop grace expired, terminating process group")
		if err := procgroup.Terminate(p.cmd, p.exited, s.opts.KillGrace); err != nil {
			logger.Error().Err(err).Str(log.FieldEvent, "supervisor.terminate_failed").Msg("process group did not exit")
		}
	}
	<-p.finished
}

func (s *Supervisor) monitor(p *process) {
	waitErr := p.cmd.Wait()
	close(p.exited)

	drain := time.NewTimer(s.opts.DrainTimeout)
	select {
	case <-p.bridge.Done():
	case <-drain.C:
		// A descendant still holds stdout open.
		_ = p.stdout.Close()
		<-p.bridge.Done()
	}
	drain.Stop()
	_ = p.bridge.CloseInput()
	_ = p.stdout.Close()

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}

	s.mu.Lock()
	s.history = p.bridge.History(s.opts.CrashLines)
	switch state := s.machine.State(); {
	case state == workload.Stopping:
		s.exitLocked(code, p.forced.Load())
	case state == workload.Running && code == 0 && p.bridge.StopSeen():
		s.exitLocked(code, false)
	default:
		perr := &ProcessError{Op: "exit", ExitCode: code, Err: waitErr}
		if waitErr == nil {
			perr.Err = errors.New("exited without shutdown marker")
		}
		s.crashLocked(perr, s.history)
	}
	s.proc = nil
	s.startedAt = time.Time{}
	s.mu.Unlock()

	close(p.finished)
}

func (s *Supervisor) exitLocked(code int, forced bool) {
	if _, err := s.machine.Fire(context.Background(), evExit); err != nil {
		return
	}
	s.exitCode, s.forced = code, forced
	s.publishLocked(bus.ServerStopped, bus.Args{bus.ArgExitCode: code, bus.ArgForced: forced})
}

func (s *Supervisor) crashLocked(perr *ProcessError, lastLines []string) {
	if _, err := s.machine.Fire(context.Background(), evCrash); err != nil {
		return
	}
	s.exitCode = perr.ExitCode
	s.publishLocked(bus.ServerCrashed, bus.Args{bus.ArgExitCode: perr.ExitCode, bus.ArgReason: perr.Error()})

	logger := s.loggerLocked()
	ev := logger.Error().
		Err(perr).
		Str(log.FieldEvent, "supervisor.crashed").
		Int(log.FieldExitCode, perr.ExitCode)
	if len(lastLines) > 0 {
		ev = ev.Strs("last_lines", lastLines)
	}
	ev.Msg("workload crashed")
}

func (s *Supervisor) publishLocked(code bus.Code, args bus.Args) {
	if s.pub == nil {
		return
	}
	if args == nil {
		args = bus.Args{}
	}
	args[bus.ArgServerName] = s.def.Name
	if err := s.pub.Publish(context.Background(), bus.NewEvent(code, args)); err != nil && !errors.Is(err, bus.ErrClosed) {
		logger := s.loggerLocked()
		logger.Error().Err(err).Str(log.FieldEvent, "supervisor.publish_failed").Stringer(log.FieldCode, code).Msg("failed to publish lifecycle event")
	}
}

// observe runs inside Fire, which is always called with s.mu held.
func (s *Supervisor) observe(from, to workload.State, ev lifecycleEvent) {
	metrics.RecordTransition(string(from), string(to))
	logger := s.loggerLocked()
	logger.Info().
		Str(log.FieldEvent, "supervisor.transition").
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Str("trigger", string(ev)).
		Msg("workload state changed")
}

func (s *Supervisor) loggerLocked() zerolog.Logger {
	return log.WithComponent("supervisor").With().Str(log.FieldServerName, s.def.Name).Logger()
}

func (s *Supervisor) rename(name string) {
	s.mu.Lock()
	s.def.Name = name
	s.mu.Unlock()
}

// retire marks the supervisor removed. Later operations fail with
// ErrStaleName.
func (s *Supervisor) retire() {
	s.mu.Lock()
	s.retired = true
	state := s.machine.State()
	s.mu.Unlock()
	metrics.ForgetWorkload(string(state))
}
