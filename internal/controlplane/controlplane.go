// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package controlplane serves the request codes of the bus catalog by
// routing them to the registry, the fleet and the version resolver.
package controlplane

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mcfleet/internal/bus"
	"github.com/ManuGH/mcfleet/internal/console"
	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/registry"
	"github.com/ManuGH/mcfleet/internal/supervisor"
	"github.com/ManuGH/mcfleet/internal/validate"
	"github.com/ManuGH/mcfleet/internal/versions"
	"github.com/ManuGH/mcfleet/internal/workload"
)

// infoHistoryLines is how many console lines server.info includes.
const infoHistoryLines = 20

// Info is the server.info reply.
type Info struct {
	registry.Entry
	Console []string `json:"console,omitempty"`
}

// ControlPlane owns the request handlers of one bus.
type ControlPlane struct {
	bus      *bus.Bus
	registry *registry.Registry
	fleet    *supervisor.Fleet
	versions *versions.Resolver
	logger   zerolog.Logger
}

func New(b *bus.Bus, reg *registry.Registry, fleet *supervisor.Fleet, res *versions.Resolver) *ControlPlane {
	return &ControlPlane{
		bus:      b,
		registry: reg,
		fleet:    fleet,
		versions: res,
		logger:   log.WithComponent("controlplane"),
	}
}

// Bootstrap creates a supervisor for every registered workload and makes
// the registry read live status from the fleet.
func (c *ControlPlane) Bootstrap() error {
	for _, w := range c.registry.All() {
		if _, err := c.fleet.Add(w); err != nil && !errors.Is(err, supervisor.ErrExists) {
			return fmt.Errorf("supervise %s: %w", w.Name, err)
		}
	}
	c.registry.SetStatusSource(c.fleet)
	c.logger.Info().
		Str(log.FieldEvent, "controlplane.bootstrapped").
		Int("workloads", len(c.fleet.Names())).
		Msg("fleet bootstrapped from registry")
	return nil
}

func (c *ControlPlane) handlers() map[bus.Code]bus.HandlerFunc {
	return map[bus.Code]bus.HandlerFunc{
		bus.ServerStart:        c.start,
		bus.ServerStop:         c.stop,
		bus.ServerRestart:      c.restart,
		bus.ServerCreate:       c.create,
		bus.ServerDelete:       c.delete,
		bus.ServerRename:       c.rename,
		bus.ServerList:         c.list,
		bus.ServerPing:         c.ping,
		bus.ServerInfo:         c.info,
		bus.ServerSeed:         c.seed,
		bus.ConsoleSendCommand: c.sendCommand,
		bus.ConsoleSendMessage: c.sendMessage,
		bus.PlayerKick:         c.kick,
		bus.PlayerBan:          c.ban,
		bus.PlayerPardon:       c.pardon,
		bus.PlayerList:         c.players,
		bus.VersionsEngine:     c.engines,
		bus.VersionsLoader:     c.loaders,
	}
}

// Register installs one handler per request code. Nothing is registered
// if any code already has a handler.
func (c *ControlPlane) Register() error {
	var registered []bus.Code
	for code, h := range c.handlers() {
		if err := c.bus.Register(code, h); err != nil {
			for _, done := range registered {
				c.bus.Unregister(done)
			}
			return fmt.Errorf("register %s: %w", code, err)
		}
		registered = append(registered, code)
	}
	return nil
}

// Unregister removes every handler Register installed.
func (c *ControlPlane) Unregister() {
	for code := range c.handlers() {
		c.bus.Unregister(code)
	}
}

func (c *ControlPlane) start(ctx context.Context, ev bus.Event) (any, error) {
	if err := c.fleet.Start(ctx, ev.ServerName()); err != nil {
		return nil, err
	}
	return true, nil
}

func (c *ControlPlane) stop(ctx context.Context, ev bus.Event) (any, error) {
	return c.fleet.Stop(ctx, ev.ServerName())
}

func (c *ControlPlane) restart(ctx context.Context, ev bus.Event) (any, error) {
	return c.fleet.Restart(ctx, ev.ServerName())
}

func (c *ControlPlane) create(ctx context.Context, ev bus.Event) (any, error) {
	w, err := c.registry.Create(ctx, registry.CreateRequest{
		Name:          ev.ServerName(),
		Path:          ev.Str(bus.ArgServerPath),
		EngineVersion: ev.Str(bus.ArgEngineVersion),
		LoaderKind:    ev.Str(bus.ArgLoaderKind),
		LoaderVersion: ev.Str(bus.ArgLoaderVersion),
		MemoryMB:      int(ev.Int(bus.ArgMemoryMB)),
		Autostart:     ev.Bool(bus.ArgAutostart),
		AllowBugged:   ev.Bool(bus.ArgAllowBugged),
	})
	if err != nil {
		return nil, err
	}
	if _, err := c.fleet.Add(w); err != nil {
		if derr := c.registry.Delete(ctx, w.Name); derr != nil {
			c.logger.Error().Err(derr).Str(log.FieldServerName, w.Name).Str(log.FieldEvent, "controlplane.rollback_failed").Msg("could not roll back workload creation")
		}
		return nil, err
	}
	c.notify(ctx, bus.ServerCreated, bus.Args{
		bus.ArgServerName:    w.Name,
		bus.ArgServerPath:    w.Path,
		bus.ArgEngineVersion: w.EngineVersion,
	})
	return true, nil
}

// delete holds the supervisor's operation slot across the store write so
// no lifecycle operation can start in between.
func (c *ControlPlane) delete(ctx context.Context, ev bus.Event) (any, error) {
	name := ev.ServerName()
	res, err := c.fleet.Reserve(name, "delete")
	if errors.Is(err, supervisor.ErrNotFound) {
		// Registered but never supervised, e.g. after a failed bootstrap.
		if err := c.registry.Delete(ctx, name); err != nil {
			return nil, err
		}
		c.notify(ctx, bus.ServerDeleted, bus.Args{bus.ArgServerName: name})
		return true, nil
	}
	if err != nil {
		return nil, err
	}
	defer res.Release()

	if err := c.registry.Delete(ctx, name); err != nil {
		return nil, err
	}
	res.Remove()
	c.notify(ctx, bus.ServerDeleted, bus.Args{bus.ArgServerName: name})
	return true, nil
}

func (c *ControlPlane) rename(ctx context.Context, ev bus.Event) (any, error) {
	old, name := ev.ServerName(), ev.Str(bus.ArgNewName)
	res, err := c.fleet.Reserve(old, "rename")
	if err != nil {
		return nil, err
	}
	defer res.Release()

	if _, err := c.registry.Rename(ctx, old, name); err != nil {
		return nil, err
	}
	if err := res.Rename(name); err != nil {
		if _, rerr := c.registry.Rename(ctx, name, old); rerr != nil {
			c.logger.Error().Err(rerr).Str(log.FieldServerName, name).Str(log.FieldEvent, "controlplane.rollback_failed").Msg("could not roll back workload rename")
		}
		return nil, err
	}
	c.notify(ctx, bus.ServerRenamed, bus.Args{bus.ArgServerName: old, bus.ArgNewName: name})
	return true, nil
}

func (c *ControlPlane) list(context.Context, bus.Event) (any, error) {
	return c.registry.List(), nil
}

// ping reports the state name of one workload.
func (c *ControlPlane) ping(_ context.Context, ev bus.Event) (any, error) {
	name := ev.ServerName()
	if st, ok := c.fleet.Status(name); ok {
		return string(st.State), nil
	}
	if _, err := c.registry.Get(name); err != nil {
		return nil, err
	}
	return string(workload.Stopped), nil
}

func (c *ControlPlane) info(_ context.Context, ev bus.Event) (any, error) {
	name := ev.ServerName()
	w, err := c.registry.Get(name)
	if err != nil {
		return nil, err
	}
	out := Info{Entry: registry.Entry{Workload: w, Status: workload.Status{State: workload.Stopped}}}
	if s, err := c.fleet.Get(name); err == nil {
		out.Status = s.Status()
		out.Console = s.History(infoHistoryLines)
	}
	return out, nil
}

func (c *ControlPlane) seed(ctx context.Context, ev bus.Event) (any, error) {
	return c.fleet.Seed(ctx, ev.ServerName())
}

// players is derived from console output, so it needs no round trip to the
// server.
func (c *ControlPlane) players(_ context.Context, ev bus.Event) (any, error) {
	return c.fleet.Players(ev.ServerName())
}

func (c *ControlPlane) sendCommand(ctx context.Context, ev bus.Event) (any, error) {
	return c.send(ctx, ev.ServerName(), ev.Str(bus.ArgCommand), nil)
}

func (c *ControlPlane) sendMessage(ctx context.Context, ev bus.Event) (any, error) {
	line, err := console.MessageCommand(ev.Str(bus.ArgFrom), ev.Str(bus.ArgMessage))
	return c.send(ctx, ev.ServerName(), line, err)
}

func (c *ControlPlane) kick(ctx context.Context, ev bus.Event) (any, error) {
	line, err := console.KickCommand(ev.Str(bus.ArgPlayerName), ev.Str(bus.ArgReason))
	return c.send(ctx, ev.ServerName(), line, err)
}

func (c *ControlPlane) ban(ctx context.Context, ev bus.Event) (any, error) {
	line, err := console.BanCommand(ev.Str(bus.ArgPlayerName), ev.Str(bus.ArgReason))
	return c.send(ctx, ev.ServerName(), line, err)
}

func (c *ControlPlane) pardon(ctx context.Context, ev bus.Event) (any, error) {
	line, err := console.PardonCommand(ev.Str(bus.ArgPlayerName))
	return c.send(ctx, ev.ServerName(), line, err)
}

// send writes line unless building it failed. Player events are derived
// from the server's own output, not published here.
func (c *ControlPlane) send(ctx context.Context, name, line string, buildErr error) (any, error) {
	if buildErr != nil {
		return nil, validate.Fail("command", buildErr.Error(), line)
	}
	if err := c.fleet.Send(ctx, name, line); err != nil {
		return nil, err
	}
	return true, nil
}

func (c *ControlPlane) engines(ctx context.Context, _ bus.Event) (any, error) {
	return c.versions.Engines(ctx)
}

func (c *ControlPlane) loaders(ctx context.Context, ev bus.Event) (any, error) {
	kind, err := versions.ParseLoaderKind(ev.Str(bus.ArgLoaderKind))
	if err != nil {
		return nil, validate.Fail(bus.ArgLoaderKind, err.Error(), ev.Str(bus.ArgLoaderKind))
	}
	return c.versions.Loaders(ctx, kind, ev.Str(bus.ArgEngineVersion))
}

func (c *ControlPlane) notify(ctx context.Context, code bus.Code, args bus.Args) {
	if err := c.bus.Publish(ctx, bus.NewEvent(code, args)); err != nil && !errors.Is(err, bus.ErrClosed) {
		c.logger.Error().Err(err).Str(log.FieldEvent, "controlplane.publish_failed").Stringer(log.FieldCode, code).Msg("failed to publish notification")
	}
}
