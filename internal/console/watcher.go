// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package console

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/metrics"
)

// RuleSource supplies the rule table current at the time of the call.
type RuleSource interface {
	Rules() *RuleSet
}

// StaticRules is a fixed RuleSource.
type StaticRules struct{ Set *RuleSet }

func (s StaticRules) Rules() *RuleSet { return s.Set }

const reloadDebounce = 200 * time.Millisecond

// RulesHolder serves the rule table and hot-reloads it from a file. A
// reload that fails to parse keeps the previous table.
type RulesHolder struct {
	path    string
	current atomic.Pointer[RuleSet]
	logger  zerolog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRulesHolder loads path, or uses DefaultRules when path is empty.
func NewRulesHolder(path string) (*RulesHolder, error) {
	h := &RulesHolder{path: path, logger: log.WithComponent("console.rules")}
	if path == "" {
		h.current.Store(DefaultRules())
		return h, nil
	}
	set, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	h.current.Store(set)
	return h, nil
}

func (h *RulesHolder) Rules() *RuleSet { return h.current.Load() }

// Reload re-reads the file and swaps the table on success.
func (h *RulesHolder) Reload() error {
	if h.path == "" {
		return nil
	}
	set, err := LoadRules(h.path)
	if err != nil {
		metrics.IncRulesReload("failed")
		h.logger.Error().Err(err).Str(log.FieldEvent, "console.rules_reload_failed").Msg("keeping previous console rules")
		return err
	}
	h.current.Store(set)
	metrics.IncRulesReload("success")
	h.logger.Info().
		Str(log.FieldEvent, "console.rules_reloaded").
		Int("rules", len(set.Rules)).
		Msg("console rules reloaded")
	return nil
}

// Watch reloads on file changes until ctx ends or Close is called. The
// parent directory is watched so editors that replace the file are seen.
func (h *RulesHolder) Watch(ctx context.Context) error {
	if h.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch rules dir: %w", err)
	}

	h.mu.Lock()
	h.watcher = w
	h.done = make(chan struct{})
	h.mu.Unlock()

	go h.loop(ctx, w, h.done)
	return nil
}

func (h *RulesHolder) loop(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	target := filepath.Clean(h.path)

	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
			} else {
				debounce.Reset(reloadDebounce)
			}
			fire = debounce.C
		case <-fire:
			fire = nil
			_ = h.Reload()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str(log.FieldEvent, "console.rules_watch_error").Msg("rules watcher error")
		}
	}
}

// Close stops watching and waits for the loop to exit.
func (h *RulesHolder) Close() error {
	h.mu.Lock()
	w, done := h.watcher, h.done
	h.watcher = nil
	h.mu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}
