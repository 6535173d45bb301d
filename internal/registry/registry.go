// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package registry keeps the durable set of workload definitions. Every
// mutation reaches the store before the in-memory view changes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/validate"
	"github.com/ManuGH/mcfleet/internal/versions"
	"github.com/ManuGH/mcfleet/internal/workload"
)

const (
	MinMemoryMB = 512
	MaxMemoryMB = 1 << 20
)

var ErrNotFound = errors.New("registry: workload not found")

// StatusSource reports live status of supervised workloads.
type StatusSource interface {
	Status(name string) (workload.Status, bool)
}

// ComboValidator checks an engine/loader combination against the catalog.
type ComboValidator interface {
	Validate(ctx context.Context, c versions.Combo) (versions.Combo, error)
}

// Entry is one row of List.
type Entry struct {
	workload.Workload
	Status workload.Status `json:"status"`
}

// CreateRequest carries the fields a caller supplies for a new workload.
type CreateRequest struct {
	Name          string
	Path          string
	EngineVersion string
	LoaderKind    string
	LoaderVersion string
	MemoryMB      int
	Autostart     bool
	AllowBugged   bool
}

type Option func(*Registry)

// WithAllowedRoots restricts install paths to directories below roots.
func WithAllowedRoots(roots ...string) Option {
	return func(r *Registry) { r.roots = roots }
}

// WithComboValidator checks version combinations on create.
func WithComboValidator(v ComboValidator) Option {
	return func(r *Registry) { r.combos = v }
}

// WithStatusSource attaches live status to List.
func WithStatusSource(s StatusSource) Option {
	return func(r *Registry) { r.status = s }
}

func withClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

type Registry struct {
	store  Store
	roots  []string
	combos ComboValidator
	status StatusSource
	now    func() time.Time

	// write serializes mutations so validation sees a stable view.
	write sync.Mutex

	mu     sync.RWMutex
	byName map[string]workload.Workload
}

// New loads every definition from store.
func New(ctx context.Context, store Store, opts ...Option) (*Registry, error) {
	r := &Registry{
		store:  store,
		now:    time.Now,
		byName: make(map[string]workload.Workload),
	}
	for _, opt := range opts {
		opt(r)
	}

	all, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load workloads: %w", err)
	}
	for _, w := range all {
		r.byName[w.Name] = w
	}
	logger := log.WithComponent("registry")
	logger.Info().
		Str(log.FieldEvent, "registry.loaded").
		Int("count", len(all)).
		Msg("workload registry loaded")
	return r, nil
}

// SetStatusSource attaches live status after construction, once the fleet
// exists.
func (r *Registry) SetStatusSource(s StatusSource) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// Get returns the definition of name.
func (r *Registry) Get(name string) (workload.Workload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byName[name]
	if !ok {
		return workload.Workload{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return w, nil
}

// All returns every definition sorted by name.
func (r *Registry) All() []workload.Workload {
	r.mu.RLock()
	out := make([]workload.Workload, 0, len(r.byName))
	for _, w := range r.byName {
		out = append(out, w)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// List returns a snapshot of every workload with its live status. Workloads
// without a supervisor report STOPPED.
func (r *Registry) List() []Entry {
	all := r.All()
	r.mu.RLock()
	src := r.status
	r.mu.RUnlock()

	out := make([]Entry, len(all))
	for i, w := range all {
		out[i] = Entry{Workload: w, Status: workload.Status{State: workload.Stopped}}
		if src == nil {
			continue
		}
		if st, ok := src.Status(w.Name); ok {
			out[i].Status = st
		}
	}
	return out
}

// Autostart returns the names flagged for autostart.
func (r *Registry) Autostart() []string {
	var names []string
	for _, w := range r.All() {
		if w.Autostart {
			names = append(names, w.Name)
		}
	}
	return names
}

// Create validates and persists a new workload. Its install directory is
// created if missing.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (workload.Workload, error) {
	w := workload.Workload{
		Name:          req.Name,
		Path:          req.Path,
		EngineVersion: req.EngineVersion,
		LoaderKind:    strings.ToLower(req.LoaderKind),
		LoaderVersion: req.LoaderVersion,
		MemoryMB:      req.MemoryMB,
		Autostart:     req.Autostart,
		CreatedAt:     r.now().UTC().Truncate(time.Second),
	}
	if w.LoaderKind == "" {
		w.LoaderKind = string(versions.LoaderNone)
	}

	// Cheap checks first; the catalog lookup may go upstream and runs
	// without the write lock.
	if err := r.checkCreate(w); err != nil {
		return workload.Workload{}, err
	}

	if r.combos != nil {
		combo, err := r.combos.Validate(ctx, versions.Combo{
			Engine:        w.EngineVersion,
			LoaderKind:    versions.LoaderKind(w.LoaderKind),
			LoaderVersion: w.LoaderVersion,
			AllowBugged:   req.AllowBugged,
		})
		if err != nil {
			return workload.Workload{}, err
		}
		w.EngineVersion = combo.Engine
		w.LoaderKind = string(combo.LoaderKind)
		w.LoaderVersion = combo.LoaderVersion
	} else if w.EngineVersion == "" {
		return workload.Workload{}, validate.Fail("engine_version", "engine version is required", "")
	}

	r.write.Lock()
	defer r.write.Unlock()

	// Another create may have taken the name or path meanwhile.
	if err := r.checkCreate(w); err != nil {
		return workload.Workload{}, err
	}
	v := validate.New()
	v.Directory("path", w.Path, false)
	if err := v.Err(); err != nil {
		return workload.Workload{}, err
	}

	if err := r.store.Save(ctx, w); err != nil {
		return workload.Workload{}, fmt.Errorf("save workload %s: %w", w.Name, err)
	}
	r.mu.Lock()
	r.byName[w.Name] = w
	r.mu.Unlock()

	logger := log.WithComponent("registry")
	logger.Info().
		Str(log.FieldEvent, "registry.created").
		Str(log.FieldServerName, w.Name).
		Str(log.FieldPath, w.Path).
		Str("engine_version", w.EngineVersion).
		Str("loader", w.LoaderKind+" "+w.LoaderVersion).
		Msg("workload created")
	return w, nil
}

// Delete removes name from the store and the registry. The install
// directory is left in place.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.write.Lock()
	defer r.write.Unlock()

	if _, err := r.Get(name); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete workload %s: %w", name, err)
	}
	r.mu.Lock()
	delete(r.byName, name)
	r.mu.Unlock()

	logger := log.WithComponent("registry")
	logger.Info().Str(log.FieldEvent, "registry.deleted").Str(log.FieldServerName, name).Msg("workload deleted")
	return nil
}

// Rename changes the key of a workload. Stores implementing Renamer do it
// in one step; others save the new record before deleting the old one.
func (r *Registry) Rename(ctx context.Context, old, name string) (workload.Workload, error) {
	r.write.Lock()
	defer r.write.Unlock()

	w, err := r.Get(old)
	if err != nil {
		return workload.Workload{}, err
	}
	v := validate.New()
	r.checkName(v, "new_name", name)
	if err := v.Err(); err != nil {
		return workload.Workload{}, err
	}

	renamed := w
	renamed.Name = name
	if rn, ok := r.store.(Renamer); ok {
		err = rn.Rename(ctx, old, renamed)
	} else {
		err = r.store.Save(ctx, renamed)
		if err == nil {
			if err = r.store.Delete(ctx, old); err != nil {
				_ = r.store.Delete(ctx, name)
			}
		}
	}
	if err != nil {
		return workload.Workload{}, fmt.Errorf("rename workload %s: %w", old, err)
	}

	r.mu.Lock()
	delete(r.byName, old)
	r.byName[name] = renamed
	r.mu.Unlock()

	logger := log.WithComponent("registry")
	logger.Info().
		Str(log.FieldEvent, "registry.renamed").
		Str(log.FieldServerName, old).
		Str(log.FieldNewName, name).
		Msg("workload renamed")
	return renamed, nil
}

func (r *Registry) checkCreate(w workload.Workload) error {
	v := validate.New()
	r.checkName(v, "name", w.Name)
	v.Range("memory_mb", w.MemoryMB, MinMemoryMB, MaxMemoryMB)
	r.checkPath(v, w.Path)
	return v.Err()
}

func (r *Registry) checkName(v *validate.Validator, field, name string) {
	if !workload.ValidName(name) {
		v.AddError(field, "must match "+workload.NamePattern.String(), name)
		return
	}
	r.mu.RLock()
	_, taken := r.byName[name]
	r.mu.RUnlock()
	if taken {
		v.AddError(field, "a workload with this name already exists", name)
	}
}

// checkPath requires an absolute clean path inside the allowed roots that
// neither equals nor nests with another workload's path.
func (r *Registry) checkPath(v *validate.Validator, path string) {
	before := len(v.Errors())
	v.AbsolutePath("path", path)
	if len(v.Errors()) > before {
		return
	}
	v.WithinRoots("path", path, r.roots)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, other := range r.byName {
		o := filepath.Clean(other.Path)
		if o == path || validate.IsWithin(o, path) || validate.IsWithin(path, o) {
			v.AddError("path", fmt.Sprintf("path overlaps workload %q", name), path)
			return
		}
	}
}
