// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ManuGH/mcfleet/internal/workload"
)

// Store persists workload definitions keyed by name.
type Store interface {
	LoadAll(ctx context.Context) ([]workload.Workload, error)
	// Save inserts or replaces the record for w.Name.
	Save(ctx context.Context, w workload.Workload) error
	// Delete removes name. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error
	Close() error
}

// Renamer is implemented by stores that can move a record atomically.
type Renamer interface {
	Rename(ctx context.Context, old string, w workload.Workload) error
}

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Backends lists the accepted store.backend values.
func Backends() []string {
	return []string{BackendSQLite, BackendBadger, BackendFile, BackendMemory}
}

// OpenStore creates a Store for the configured backend.
func OpenStore(backend, path string) (Store, error) {
	if backend == "" {
		backend = BackendSQLite
	}
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return OpenSQLiteStore(path)
	case BackendBadger:
		return OpenBadgerStore(path)
	case BackendFile:
		return OpenFileStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]workload.Workload
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]workload.Workload)}
}

func (m *MemoryStore) LoadAll(context.Context) ([]workload.Workload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]workload.Workload, 0, len(m.recs))
	for _, w := range m.recs {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, w workload.Workload) error {
	m.mu.Lock()
	m.recs[w.Name] = w
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.recs, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Rename(_ context.Context, old string, w workload.Workload) error {
	m.mu.Lock()
	delete(m.recs, old)
	m.recs[w.Name] = w
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
