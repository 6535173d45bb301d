// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package versions

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/metrics"
)

// DefaultRefreshSchedule prewarms the engine list four times a day.
const DefaultRefreshSchedule = "@every 6h"

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a 5-field cron expression or an @descriptor.
func ParseSchedule(expr string) (cron.Schedule, error) {
	s, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", expr, err)
	}
	return s, nil
}

// Refresher periodically refreshes the resolver's engine list.
type Refresher struct {
	cron     *cron.Cron
	resolver *Resolver
	timeout  time.Duration
}

// NewRefresher schedules Resolver.Refresh on expr.
func NewRefresher(r *Resolver, expr string) (*Refresher, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	f := &Refresher{
		cron:     cron.New(cron.WithParser(scheduleParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		resolver: r,
		timeout:  r.fetchTimeout,
	}
	f.cron.Schedule(sched, cron.FuncJob(f.run))
	return f, nil
}

func (f *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	logger := log.WithComponent("versions")
	if err := f.resolver.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "catalog.refresh_failed").Msg("scheduled catalog refresh failed")
		metrics.IncCatalogRefreshFailure("engines")
		return
	}
	logger.Debug().Str(log.FieldEvent, "catalog.refreshed").Msg("engine catalog refreshed")
}

// Start runs the schedule in the background.
func (f *Refresher) Start() {
	f.cron.Start()
}

// Stop halts the schedule and waits for a running refresh until ctx ends.
func (f *Refresher) Stop(ctx context.Context) error {
	done := f.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
