// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package controlplane

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/mcfleet/internal/bus"
	"github.com/ManuGH/mcfleet/internal/registry"
	"github.com/ManuGH/mcfleet/internal/supervisor"
	"github.com/ManuGH/mcfleet/internal/validate"
	"github.com/ManuGH/mcfleet/internal/versions"
	"github.com/ManuGH/mcfleet/internal/workload"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const scriptServer = `echo "[12:00:00] [Server thread/INFO]: Starting minecraft server"
echo "[12:00:01] [Server thread/INFO]: Done (1.234s)! For help, type \"help\""
while read line; do
  case "$line" in
    stop) echo "[12:00:02] [Server thread/INFO]: Stopping the server"; exit 0 ;;
    "kick Steve griefing") echo "[12:00:02] [Server thread/INFO]: Kicked Steve: griefing" ;;
    join)
      echo "[12:00:02] [Server thread/INFO]: Steve joined the game"
      echo "[12:00:02] [Server thread/INFO]: Alex joined the game" ;;
    seed) echo "[12:00:02] [Server thread/INFO]: Seed: [-4172144997902289642]" ;;
    *) echo "[12:00:02] [Server thread/INFO]: Unknown command: $line" ;;
  esac
done
`

type fixture struct {
	bus   *bus.Bus
	reg   *registry.Registry
	fleet *supervisor.Fleet
	cp    *ControlPlane
	root  string
}

func newFixture(t *testing.T, store registry.Store) *fixture {
	t.Helper()
	b := bus.New(bus.DefaultCatalog())
	resolver := versions.NewResolver(&versions.StaticSource{
		EngineVersions: []string{"1.19.4", "1.20.1"},
		Builds: map[versions.LoaderKind]map[string][]versions.LoaderBuild{
			versions.LoaderForge: {"1.20.1": {{Version: "47.2.0", Recommended: true}}},
		},
	}, nil)
	reg, err := registry.New(context.Background(), store, registry.WithComboValidator(resolver))
	require.NoError(t, err)
	fleet := supervisor.NewFleet(b, supervisor.Options{
		Launcher:     supervisor.Launcher{Commands: map[string]string{supervisor.DefaultCommandKey: "sh ${server_path}/run.sh"}},
		StopGrace:    2 * time.Second,
		KillGrace:    time.Second,
		DrainTimeout: 500 * time.Millisecond,
	})

	cp := New(b, reg, fleet, resolver)
	require.NoError(t, cp.Bootstrap())
	require.NoError(t, cp.Register())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		require.NoError(t, fleet.Shutdown(ctx))
		cp.Unregister()
		require.NoError(t, b.Close(ctx))
	})
	return &fixture{bus: b, reg: reg, fleet: fleet, cp: cp, root: t.TempDir()}
}

func (f *fixture) request(t *testing.T, code bus.Code, args bus.Args) (any, error) {
	t.Helper()
	reply, err := f.bus.Request(context.Background(), bus.NewEvent(code, args), 10*time.Second)
	if err != nil {
		return nil, err
	}
	return reply.Result(), nil
}

func (f *fixture) create(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	res, err := f.request(t, bus.ServerCreate, createArgs(name, path, "1.20.1"))
	require.NoError(t, err)
	assert.Equal(t, true, res)
	require.NoError(t, os.WriteFile(filepath.Join(path, "run.sh"), []byte(scriptServer), 0o600))
	return path
}

func createArgs(name, path, engine string) bus.Args {
	return bus.Args{
		bus.ArgServerName:    name,
		bus.ArgServerPath:    path,
		bus.ArgEngineVersion: engine,
		bus.ArgLoaderKind:    "none",
		bus.ArgLoaderVersion: "",
		bus.ArgMemoryMB:      2048,
		bus.ArgAutostart:     false,
		bus.ArgAllowBugged:   false,
	}
}

func waitFor(t *testing.T, sub *bus.Subscription, code bus.Code) bus.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.C():
			if ev.Code == code {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", code)
			return bus.Event{}
		}
	}
}

func TestScenario_CreateStartStop(t *testing.T) {
	f := newFixture(t, registry.NewMemoryStore())
	sub, err := f.bus.Subscribe(bus.ServerCreated, bus.ServerStarting, bus.ServerStarted, bus.ServerStopped)
	require.NoError(t, err)

	f.create(t, "survival")
	created := waitFor(t, sub, bus.ServerCreated)
	assert.Equal(t, "survival", created.ServerName())

	list, err := f.request(t, bus.ServerList, nil)
	require.NoError(t, err)
	entries := list.([]registry.Entry)
	require.Len(t, entries, 1)
	assert.Equal(t, workload.Stopped, entries[0].Status.State)

	res, err := f.request(t, bus.ServerStart, bus.Args{bus.ArgServerName: "survival"})
	require.NoError(t, err)
	assert.Equal(t, true, res)
	waitFor(t, sub, bus.ServerStarting)
	waitFor(t, sub, bus.ServerStarted)

	state, err := f.request(t, bus.ServerPing, bus.Args{bus.ArgServerName: "survival"})
	require.NoError(t, err)
	assert.Equal(t, string(workload.Running), state)

	res, err = f.request(t, bus.ServerStop, bus.Args{bus.ArgServerName: "survival"})
	require.NoError(t, err)
	assert.Equal(t, true, res)
	stopped := waitFor(t, sub, bus.ServerStopped)
	assert.False(t, stopped.Bool(bus.ArgForced))

	state, err = f.request(t, bus.ServerPing, bus.Args{bus.ArgServerName: "survival"})
	require.NoError(t, err)
	assert.Equal(t, string(workload.Stopped), state)
}

func TestCreate_UnknownEngine(t *testing.T) {
	f := newFixture(t, registry.NewMemoryStore())
	_, err := f.request(t, bus.ServerCreate, createArgs("survival", filepath.Join(f.root, "survival"), "0.0.1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, validate.ErrValidation)

	list, err := f.request(t, bus.ServerList, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.fleet.Names())
}

func TestDelete_RequiresStopped(t *testing.T) {
	f := newFixture(t, registry.NewMemoryStore())
	f.create(t, "survival")
	sub, err := f.bus.Subscribe(bus.ServerStarted, bus.ServerDeleted)
	require.NoError(t, err)

	_, err = f.request(t, bus.ServerStart, bus.Args{bus.ArgServerName: "survival"})
	require.NoError(t, err)
	waitFor(t, sub, bus.ServerStarted)

	_, err = f.request(t, bus.ServerDelete, bus.Args{bus.ArgServerName: "survival"})
	assert.ErrorIs(t, err, supervisor.ErrNotStopped)

	_, err = f.request(t, bus.ServerStop, bus.Args{bus.ArgServerName: "survival"})
	require.NoError(t, err)

	res, err := f.request(t, bus.ServerDelete, bus.Args{bus.ArgServerName: "survival"})
	require.NoError(t, err)
	assert.Equal(t, true, res)
	waitFor(t, sub, bus.ServerDeleted)

	_, err = f.request(t, bus.ServerInfo, bus.Args{bus.ArgServerName: "survival"})
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Empty(t, f.fleet.Names())
}

func TestRename(t *testing.T) {
	f := newFixture(t, registry.NewMemoryStore())
	f.create(t, "survival")
	sub, err := f.bus.Subscribe(bus.ServerRenamed, bus.ServerStarted)
	require.NoError(t, err)

	res, err := f.request(t, bus.ServerRename, bus.Args{bus.ArgServerName: "survival", bus.ArgNewName: "hardcore"})
	require.NoError(t, err)
	assert.Equal(t, true, res)
	ev := waitFor(t, sub, bus.ServerRenamed)
	assert.Equal(t, "survival", ev.ServerName())
	assert.Equal(t, "hardcore", ev.Str(bus.ArgNewName))

	_, err = f.request(t, bus.ServerStart, bus.Args{bus.ArgServerName: "survival"})
	assert.ErrorIs(t, err, supervisor.ErrNotFound)

	_, err = f.request(t, bus.ServerStart, bus.Args{bus.ArgServerName: "hardcore"})
	require.NoError(t, err)
	started := waitFor(t, sub, bus.ServerStarted)
	assert.Equal(t, "hardcore", started.ServerName())

	info, err := f.request(t, bus.ServerInfo, bus.Args{bus.ArgServerName: "hardcore"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.root, "survival"), info.(Info).Path)
}

func TestRename_InvalidTargetKeepsName(t *testing.T) {
	f := newFixture(t, registry.NewMemoryStore())
	f.create(t, "survival")
	f.create(t, "creative")

	_, err := f.request(t, bus.ServerRename, bus.Args{bus.ArgServerName: "survival", bus.ArgNewName: "creative"})
	assert.ErrorIs(t, err, validate.ErrValidation)
	assert.Equal(t, []string{"creative", "survival"}, f.fleet.Names())
}

func TestConsoleAndPlayerCommands(t *testing.T) {
	f := newFixture(t, registry.NewMemoryStore())
	f.create(t, "survival")
	sub, err := f.bus.Subscribe(bus.ServerStarted, bus.PlayerKicked)
	require.NoError(t, err)

	_, err = f.request(t, bus.PlayerKick, bus.Args{bus.ArgServerName: "survival", bus.ArgPlayerName: "Steve", bus.ArgReason: "griefing"})
	assert.ErrorIs(t, err, supervisor.ErrNotRunning)

	_, err = f.request(t, bus.ServerStart, bus.Args{bus.ArgServerName: "survival"})
	require.NoError(t, err)
	waitFor(t, sub, bus.ServerStarted)

	_, err = f.request(t, bus.PlayerKick, bus.Args{bus.ArgServerName: "survival", bus.ArgPlayerName: "not a name", bus.ArgReason: ""})
	assert.ErrorIs(t, err, validate.ErrValidation)

	res, err := f.request(t, bus.PlayerKick, bus.Args{bus.ArgServerName: "survival", bus.ArgPlayerName: "Steve", bus.ArgReason: "griefing"})
	require.NoError(t, err)
	assert.Equal(t, true, res)
	kicked := waitFor(t, sub, bus.PlayerKicked)
	assert.Equal(t, "Steve", kicked.Str(bus.ArgPlayerName))

	res, err = f.request(t, bus.ConsoleSendMessage, bus.Args{bus.ArgServerName: "survival", bus.ArgFrom: "ops", bus.ArgMessage: "restart in 5"})
	require.NoError(t, err)
	assert.Equal(t, true, res)

	_, err = f.request(t, bus.ConsoleSendCommand, bus.Args{bus.ArgServerName: "survival", bus.ArgCommand: "list"})
	require.NoError(t, err)
}

func TestPlayerListAndSeed(t *testing.T) {
	f := newFixture(t, registry.NewMemoryStore())
	f.create(t, "survival")
	sub, err := f.bus.Subscribe(bus.ServerStarted, bus.PlayerJoined, bus.PlayerKicked)
	require.NoError(t, err)
	args := bus.Args{bus.ArgServerName: "survival"}

	_, err = f.request(t, bus.PlayerList, args)
	assert.ErrorIs(t, err, supervisor.ErrNotRunning)
	_, err = f.request(t, bus.ServerSeed, args)
	assert.ErrorIs(t, err, supervisor.ErrNotRunning)

	_, err = f.request(t, bus.ServerStart, args)
	require.NoError(t, err)
	waitFor(t, sub, bus.ServerStarted)

	players, err := f.request(t, bus.PlayerList, args)
	require.NoError(t, err)
	assert.Empty(t, players)

	_, err = f.request(t, bus.ConsoleSendCommand, bus.Args{bus.ArgServerName: "survival", bus.ArgCommand: "join"})
	require.NoError(t, err)
	waitFor(t, sub, bus.PlayerJoined)
	waitFor(t, sub, bus.PlayerJoined)

	players, err = f.request(t, bus.PlayerList, args)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alex", "Steve"}, players)

	_, err = f.request(t, bus.PlayerKick, bus.Args{bus.ArgServerName: "survival", bus.ArgPlayerName: "Steve", bus.ArgReason: "griefing"})
	require.NoError(t, err)
	waitFor(t, sub, bus.PlayerKicked)

	players, err = f.request(t, bus.PlayerList, args)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alex"}, players)

	seed, err := f.request(t, bus.ServerSeed, args)
	require.NoError(t, err)
	assert.Equal(t, "-4172144997902289642", seed)

	_, err = f.request(t, bus.PlayerList, bus.Args{bus.ArgServerName: "missing"})
	assert.ErrorIs(t, err, supervisor.ErrNotFound)
}

func TestVersionQueries(t *testing.T) {
	f := newFixture(t, registry.NewMemoryStore())

	res, err := f.request(t, bus.VersionsEngine, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.20.1", "1.19.4"}, res.(versions.Engines).Versions)

	res, err = f.request(t, bus.VersionsLoader, bus.Args{bus.ArgEngineVersion: "1.20.1", bus.ArgLoaderKind: "forge"})
	require.NoError(t, err)
	builds := res.(versions.Loaders).Builds
	require.Len(t, builds, 1)
	assert.Equal(t, "47.2.0", builds[0].Version)

	_, err = f.request(t, bus.VersionsLoader, bus.Args{bus.ArgEngineVersion: "1.20.1", bus.ArgLoaderKind: "quilt"})
	assert.ErrorIs(t, err, validate.ErrValidation)
}

func TestBootstrapSupervisesStoredWorkloads(t *testing.T) {
	store := registry.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), workload.Workload{
		Name: "survival", Path: "/srv/survival", EngineVersion: "1.20.1", LoaderKind: "none", MemoryMB: 2048,
	}))
	f := newFixture(t, store)
	assert.Equal(t, []string{"survival"}, f.fleet.Names())

	state, err := f.request(t, bus.ServerPing, bus.Args{bus.ArgServerName: "survival"})
	require.NoError(t, err)
	assert.Equal(t, string(workload.Stopped), state)

	_, err = f.request(t, bus.ServerPing, bus.Args{bus.ArgServerName: "missing"})
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestRegisterTwiceFails(t *testing.T) {
	f := newFixture(t, registry.NewMemoryStore())
	err := f.cp.Register()
	assert.ErrorIs(t, err, bus.ErrAlreadyRegistered)

	// The original handlers are still installed.
	_, err = f.request(t, bus.ServerList, nil)
	assert.NoError(t, err)
}
