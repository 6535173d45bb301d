// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/workload"
)

const fileStoreVersion = 1

type fileDocument struct {
	Version   int                 `yaml:"version"`
	Workloads []workload.Workload `yaml:"workloads"`
}

// FileStore keeps all workloads in one YAML document. Every change rewrites
// the file atomically.
type FileStore struct {
	path string

	mu   sync.Mutex
	recs map[string]workload.Workload
}

// OpenFileStore reads path if it exists.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, recs: make(map[string]workload.Workload)}

	data, err := os.ReadFile(path) // #nosec G304
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workload file: %w", err)
	}

	var doc fileDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse workload file %s: %w", path, err)
	}
	if doc.Version > fileStoreVersion {
		return nil, fmt.Errorf("workload file %s: unsupported version %d", path, doc.Version)
	}
	for _, w := range doc.Workloads {
		s.recs[w.Name] = w
	}
	return s, nil
}

func (s *FileStore) LoadAll(context.Context) ([]workload.Workload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(), nil
}

func (s *FileStore) Save(_ context.Context, w workload.Workload) error {
	return s.mutate(func(recs map[string]workload.Workload) {
		recs[w.Name] = w
	})
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	return s.mutate(func(recs map[string]workload.Workload) {
		delete(recs, name)
	})
}

func (s *FileStore) Rename(_ context.Context, old string, w workload.Workload) error {
	return s.mutate(func(recs map[string]workload.Workload) {
		delete(recs, old)
		recs[w.Name] = w
	})
}

func (s *FileStore) Close() error { return nil }

// mutate applies fn to a copy and swaps it in only after the file was
// written.
func (s *FileStore) mutate(fn func(map[string]workload.Workload)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]workload.Workload, len(s.recs)+1)
	for k, v := range s.recs {
		next[k] = v
	}
	fn(next)

	prev := s.recs
	s.recs = next
	if err := s.writeLocked(); err != nil {
		s.recs = prev
		return err
	}
	return nil
}

func (s *FileStore) sortedLocked() []workload.Workload {
	out := make([]workload.Workload, 0, len(s.recs))
	for _, w := range s.recs {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *FileStore) writeLocked() error {
	data, err := yaml.Marshal(fileDocument{Version: fileStoreVersion, Workloads: s.sortedLocked()})
	if err != nil {
		return fmt.Errorf("encode workload file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create workload file dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending workload file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger := log.WithComponent("registry")
			logger.Debug().Err(err).Msg("cleanup pending workload file")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write workload file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace workload file: %w", err)
	}
	return nil
}
