// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/mcfleet/internal/console"
	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/workload"
)

const (
	autostartParallel = 4
	shutdownPoll      = 50 * time.Millisecond
)

// Fleet maps workload names to their supervisors. Operations on different
// workloads never wait for each other.
type Fleet struct {
	pub  console.Publisher
	opts Options

	mu   sync.RWMutex
	sups map[string]*Supervisor
}

// NewFleet returns an empty fleet whose supervisors share opts.
func NewFleet(pub console.Publisher, opts Options) *Fleet {
	return &Fleet{
		pub:  pub,
		opts: opts,
		sups: make(map[string]*Supervisor),
	}
}

// Add creates the supervisor for w.
func (f *Fleet) Add(w workload.Workload) (*Supervisor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sups[w.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, w.Name)
	}
	s := New(w, f.pub, f.opts)
	f.sups[w.Name] = s
	return s, nil
}

// Get returns the supervisor registered under name.
func (f *Fleet) Get(name string) (*Supervisor, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.sups[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s, nil
}

// Names returns the supervised names in sorted order.
func (f *Fleet) Names() []string {
	f.mu.RLock()
	names := make([]string, 0, len(f.sups))
	for n := range f.sups {
		names = append(names, n)
	}
	f.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Status returns the live status of name, if it is supervised.
func (f *Fleet) Status(name string) (workload.Status, bool) {
	s, err := f.Get(name)
	if err != nil {
		return workload.Status{}, false
	}
	return s.Status(), true
}

func (f *Fleet) Start(ctx context.Context, name string) error {
	s, err := f.Get(name)
	if err != nil {
		return err
	}
	return s.start(ctx, name)
}

func (f *Fleet) Stop(ctx context.Context, name string) (bool, error) {
	s, err := f.Get(name)
	if err != nil {
		return false, err
	}
	return s.stop(ctx, name)
}

func (f *Fleet) Restart(ctx context.Context, name string) (bool, error) {
	s, err := f.Get(name)
	if err != nil {
		return false, err
	}
	return s.restart(ctx, name)
}

func (f *Fleet) Send(ctx context.Context, name, line string) error {
	s, err := f.Get(name)
	if err != nil {
		return err
	}
	return s.send(ctx, name, line)
}

func (f *Fleet) Players(name string) ([]string, error) {
	s, err := f.Get(name)
	if err != nil {
		return nil, err
	}
	return s.players(name)
}

func (f *Fleet) Seed(ctx context.Context, name string) (string, error) {
	s, err := f.Get(name)
	if err != nil {
		return "", err
	}
	return s.seed(ctx, name)
}

// Reservation holds the operation slot of an idle workload. Exactly one of
// Remove or Rename may be applied before Release.
type Reservation struct {
	f       *Fleet
	s       *Supervisor
	name    string
	release func()
}

// Reserve takes the operation slot of name for op. The workload must be
// STOPPED or CRASHED. Callers must Release the reservation.
func (f *Fleet) Reserve(name, op string) (*Reservation, error) {
	s, err := f.Get(name)
	if err != nil {
		return nil, err
	}
	release, err := s.reserve(op, name)
	if err != nil {
		return nil, err
	}
	return &Reservation{f: f, s: s, name: name, release: release}, nil
}

// Remove drops the reserved supervisor from the fleet.
func (r *Reservation) Remove() {
	r.f.mu.Lock()
	if r.f.sups[r.name] == r.s {
		delete(r.f.sups, r.name)
	}
	r.f.mu.Unlock()
	r.s.retire()
}

// Rename moves the reserved supervisor to name. The old name is stale
// afterwards.
func (r *Reservation) Rename(name string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.sups[name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	delete(r.f.sups, r.name)
	r.f.sups[name] = r.s
	r.s.rename(name)
	r.name = name
	return nil
}

// Release returns the operation slot. It is safe to call more than once.
func (r *Reservation) Release() { r.release() }

// Remove deletes an idle workload's supervisor.
func (f *Fleet) Remove(name string) error {
	r, err := f.Reserve(name, "delete")
	if err != nil {
		return err
	}
	defer r.Release()
	r.Remove()
	return nil
}

// Rename moves an idle workload's supervisor from old to name.
func (f *Fleet) Rename(old, name string) error {
	r, err := f.Reserve(old, "rename")
	if err != nil {
		return err
	}
	defer r.Release()
	return r.Rename(name)
}

// Autostart starts the named workloads. Failures are logged and joined;
// one failing workload does not keep the others from starting.
func (f *Fleet) Autostart(ctx context.Context, names []string) error {
	logger := log.WithComponent("supervisor")
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(autostartParallel)
	for _, name := range names {
		g.Go(func() error {
			if err := f.Start(ctx, name); err != nil {
				logger.Warn().Err(err).Str(log.FieldServerName, name).Str(log.FieldEvent, "supervisor.autostart_failed").Msg("autostart failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				return nil
			}
			logger.Info().Str(log.FieldServerName, name).Str(log.FieldEvent, "supervisor.autostarted").Msg("workload autostarted")
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Shutdown stops every live workload in parallel and waits until each one
// has exited or ctx ends.
func (f *Fleet) Shutdown(ctx context.Context) error {
	f.mu.RLock()
	sups := make([]*Supervisor, 0, len(f.sups))
	for _, s := range f.sups {
		sups = append(sups, s)
	}
	f.mu.RUnlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range sups {
		g.Go(func() error {
			if err := s.shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// shutdown stops the process, waiting out any operation in flight.
func (s *Supervisor) shutdown(ctx context.Context) error {
	for {
		if !s.Status().State.Live() {
			return nil
		}
		_, err := s.Stop(ctx)
		switch {
		case err == nil, errors.Is(err, ErrNotRunning), errors.Is(err, ErrStaleName):
			return nil
		case errors.Is(err, ErrBusy):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(shutdownPoll):
			}
		default:
			return err
		}
	}
}
