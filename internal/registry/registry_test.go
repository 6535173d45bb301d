// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mcfleet/internal/validate"
	"github.com/ManuGH/mcfleet/internal/versions"
	"github.com/ManuGH/mcfleet/internal/workload"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func catalog() *versions.Resolver {
	return versions.NewResolver(&versions.StaticSource{
		EngineVersions: []string{"1.19.4", "1.20.1"},
		Builds: map[versions.LoaderKind]map[string][]versions.LoaderBuild{
			versions.LoaderForge: {
				"1.20.1": {
					{Version: "47.2.0", Recommended: true},
					{Version: "47.1.3", Bugged: true},
				},
			},
		},
	}, nil)
}

func newRegistry(t *testing.T, store Store, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithComboValidator(catalog()), withClock(func() time.Time { return fixedNow })}, opts...)
	r, err := New(context.Background(), store, opts...)
	require.NoError(t, err)
	return r
}

func survival(root string) CreateRequest {
	return CreateRequest{
		Name:          "survival",
		Path:          filepath.Join(root, "survival"),
		EngineVersion: "1.20.1",
		LoaderKind:    "none",
		MemoryMB:      2048,
	}
}

func TestCreate_PersistsAndCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	store := NewMemoryStore()
	r := newRegistry(t, store)

	w, err := r.Create(context.Background(), survival(root))
	require.NoError(t, err)

	want := workload.Workload{
		Name:          "survival",
		Path:          filepath.Join(root, "survival"),
		EngineVersion: "1.20.1",
		LoaderKind:    "none",
		MemoryMB:      2048,
		CreatedAt:     fixedNow,
	}
	if diff := cmp.Diff(want, w); diff != "" {
		t.Fatalf("created workload mismatch (-want +got):\n%s", diff)
	}

	stored, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff([]workload.Workload{want}, stored); diff != "" {
		t.Fatalf("stored workloads mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(w.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries := r.List()
	require.Len(t, entries, 1)
	assert.Equal(t, workload.Stopped, entries[0].Status.State)
}

func TestCreate_UnknownEngineLeavesNoEntry(t *testing.T) {
	root := t.TempDir()
	store := NewMemoryStore()
	r := newRegistry(t, store)

	req := survival(root)
	req.EngineVersion = "0.0.1"
	_, err := r.Create(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, validate.ErrValidation)

	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "engine_version", verr.Field)

	assert.Empty(t, r.List())
	stored, _ := store.LoadAll(context.Background())
	assert.Empty(t, stored)
	_, statErr := os.Stat(req.Path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestCreate_PicksDefaultLoaderBuild(t *testing.T) {
	r := newRegistry(t, NewMemoryStore())
	req := survival(t.TempDir())
	req.LoaderKind = "Forge"

	w, err := r.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "forge", w.LoaderKind)
	assert.Equal(t, "47.2.0", w.LoaderVersion)

	req = survival(t.TempDir())
	req.Name = "buggy"
	req.LoaderKind = "forge"
	req.LoaderVersion = "47.1.3"
	_, err = r.Create(context.Background(), req)
	assert.ErrorIs(t, err, validate.ErrValidation)

	req.AllowBugged = true
	_, err = r.Create(context.Background(), req)
	require.NoError(t, err)
}

func TestCreate_ValidationErrors(t *testing.T) {
	root := t.TempDir()
	r := newRegistry(t, NewMemoryStore(), WithAllowedRoots(root))
	_, err := r.Create(context.Background(), survival(root))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
		field  string
	}{
		{"duplicate name", func(c *CreateRequest) { c.Path = filepath.Join(root, "other") }, "name"},
		{"bad name", func(c *CreateRequest) { c.Name = "../evil"; c.Path = filepath.Join(root, "x") }, "name"},
		{"low memory", func(c *CreateRequest) { c.Name = "tiny"; c.Path = filepath.Join(root, "tiny"); c.MemoryMB = 128 }, "memory_mb"},
		{"relative path", func(c *CreateRequest) { c.Name = "rel"; c.Path = "servers/rel" }, "path"},
		{"unclean path", func(c *CreateRequest) { c.Name = "dirty"; c.Path = root + "/a/../dirty" }, "path"},
		{"outside roots", func(c *CreateRequest) { c.Name = "escape"; c.Path = filepath.Join(t.TempDir(), "escape") }, "path"},
		{"same path", func(c *CreateRequest) { c.Name = "twin" }, "path"},
		{"nested path", func(c *CreateRequest) { c.Name = "nested"; c.Path = filepath.Join(root, "survival", "world") }, "path"},
		{"loader version without kind", func(c *CreateRequest) { c.Name = "odd"; c.Path = filepath.Join(root, "odd"); c.LoaderVersion = "47.2.0" }, "loader_version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := survival(root)
			tt.mutate(&req)
			_, err := r.Create(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, validate.ErrValidation)

			var verr *validate.Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Len(t, r.List(), 1)
}

func TestCreate_StoreFailureKeepsRegistryUnchanged(t *testing.T) {
	store := &flakyStore{Store: NewMemoryStore(), fail: errors.New("disk full")}
	r := newRegistry(t, store)

	_, err := r.Create(context.Background(), survival(t.TempDir()))
	require.ErrorIs(t, err, store.fail)
	assert.Empty(t, r.List())
	_, err = r.Get("survival")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	store := NewMemoryStore()
	r := newRegistry(t, store)
	_, err := r.Create(context.Background(), survival(t.TempDir()))
	require.NoError(t, err)

	require.NoError(t, r.Delete(context.Background(), "survival"))
	assert.ErrorIs(t, r.Delete(context.Background(), "survival"), ErrNotFound)
	stored, _ := store.LoadAll(context.Background())
	assert.Empty(t, stored)
}

func TestRename(t *testing.T) {
	for name, store := range map[string]Store{
		"renamer":  NewMemoryStore(),
		"fallback": plainStore{NewMemoryStore()},
	} {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			r := newRegistry(t, store)
			_, err := r.Create(context.Background(), survival(root))
			require.NoError(t, err)
			other := survival(root)
			other.Name, other.Path = "creative", filepath.Join(root, "creative")
			_, err = r.Create(context.Background(), other)
			require.NoError(t, err)

			_, err = r.Rename(context.Background(), "survival", "creative")
			assert.ErrorIs(t, err, validate.ErrValidation)
			_, err = r.Rename(context.Background(), "missing", "x")
			assert.ErrorIs(t, err, ErrNotFound)

			w, err := r.Rename(context.Background(), "survival", "survival-2")
			require.NoError(t, err)
			assert.Equal(t, "survival-2", w.Name)
			assert.Equal(t, filepath.Join(root, "survival"), w.Path)

			_, err = r.Get("survival")
			assert.ErrorIs(t, err, ErrNotFound)

			stored, err := store.LoadAll(context.Background())
			require.NoError(t, err)
			var names []string
			for _, s := range stored {
				names = append(names, s.Name)
			}
			assert.ElementsMatch(t, []string{"creative", "survival-2"}, names)
		})
	}
}

type fakeStatus map[string]workload.Status

func (f fakeStatus) Status(name string) (workload.Status, bool) {
	st, ok := f[name]
	return st, ok
}

func TestListUsesStatusSource(t *testing.T) {
	root := t.TempDir()
	r := newRegistry(t, NewMemoryStore())
	for _, n := range []string{"b", "a"} {
		req := survival(root)
		req.Name, req.Path, req.Autostart = n, filepath.Join(root, n), n == "b"
		_, err := r.Create(context.Background(), req)
		require.NoError(t, err)
	}
	r.SetStatusSource(fakeStatus{"b": {State: workload.Running, PID: 42}})

	got := r.List()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, workload.Stopped, got[0].Status.State)
	assert.Equal(t, workload.Running, got[1].Status.State)
	assert.Equal(t, 42, got[1].Status.PID)
	assert.Equal(t, []string{"b"}, r.Autostart())
}

func TestNewLoadsExistingRecords(t *testing.T) {
	store := NewMemoryStore()
	w := workload.Workload{Name: "survival", Path: "/srv/survival", EngineVersion: "1.20.1", LoaderKind: "none", MemoryMB: 2048}
	require.NoError(t, store.Save(context.Background(), w))

	r := newRegistry(t, store)
	got, err := r.Get("survival")
	require.NoError(t, err)
	assert.Equal(t, w, got)
}

type flakyStore struct {
	Store
	fail error
}

func (f *flakyStore) Save(context.Context, workload.Workload) error { return f.fail }

// plainStore hides the Renamer implementation of the wrapped store.
type plainStore struct{ s Store }

func (p plainStore) LoadAll(ctx context.Context) ([]workload.Workload, error) {
	return p.s.LoadAll(ctx)
}
func (p plainStore) Save(ctx context.Context, w workload.Workload) error { return p.s.Save(ctx, w) }
func (p plainStore) Delete(ctx context.Context, name string) error { return p.s.Delete(ctx, name) }
func (p plainStore) Close() error                                   { return p.s.Close() }

// gatedCombos holds Validate for engine 1.19.4 until open is closed.
type gatedCombos struct {
	inner   ComboValidator
	entered chan struct{}
	open    chan struct{}
}

func (g *gatedCombos) Validate(ctx context.Context, c versions.Combo) (versions.Combo, error) {
	if c.Engine == "1.19.4" {
		g.entered <- struct{}{}
		<-g.open
	}
	return g.inner.Validate(ctx, c)
}

func TestCreate_SlowCatalogDoesNotBlockOtherWorkloads(t *testing.T) {
	root := t.TempDir()
	gate := &gatedCombos{inner: catalog(), entered: make(chan struct{}, 2), open: make(chan struct{})}
	r := newRegistry(t, NewMemoryStore(), WithComboValidator(gate))

	_, err := r.Create(context.Background(), survival(root))
	require.NoError(t, err)

	slow := survival(root)
	slow.Name, slow.Path, slow.EngineVersion = "legacy", filepath.Join(root, "legacy"), "1.19.4"
	created := make(chan error, 1)
	go func() {
		_, err := r.Create(context.Background(), slow)
		created <- err
	}()
	<-gate.entered

	done := make(chan error, 1)
	go func() { done <- r.Delete(context.Background(), "survival") }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("delete waited for a catalog lookup of another workload")
	}

	close(gate.open)
	require.NoError(t, <-created)
	_, err = r.Get("legacy")
	assert.NoError(t, err)
}

func TestCreate_ConcurrentSameNameOneWins(t *testing.T) {
	root := t.TempDir()
	gate := &gatedCombos{inner: catalog(), entered: make(chan struct{}, 2), open: make(chan struct{})}
	r := newRegistry(t, NewMemoryStore(), WithComboValidator(gate))

	req := survival(root)
	req.EngineVersion = "1.19.4"
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := r.Create(context.Background(), req)
			errs <- err
		}()
	}
	<-gate.entered
	<-gate.entered
	close(gate.open)

	var failed int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			assert.ErrorIs(t, err, validate.ErrValidation)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Len(t, r.All(), 1)
}
