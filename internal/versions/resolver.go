// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package versions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/mcfleet/internal/cache"
	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/metrics"
	"github.com/ManuGH/mcfleet/internal/resilience"
	"github.com/ManuGH/mcfleet/internal/telemetry"
)

const (
	DefaultTTL          = 24 * time.Hour
	DefaultFetchTimeout = 20 * time.Second

	keyEngines = "catalog:engines"
)

// Option configures a Resolver.
type Option func(*Resolver)

func WithTTL(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.ttl = d
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(r *Resolver) {
		if cb != nil {
			r.breaker = cb
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) {
		if t != nil {
			r.tracer = t
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// Resolver serves the version catalog from a TTL cache, refreshing from its
// Source on miss and falling back to the last successful fetch when the
// source fails.
type Resolver struct {
	source       Source
	fresh        cache.Cache
	ttl          time.Duration
	fetchTimeout time.Duration
	breaker      *resilience.CircuitBreaker
	group        singleflight.Group
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time

	mu        sync.RWMutex
	lastKnown map[string][]byte
}

// NewResolver builds a resolver. A nil fresh cache gets a memory cache
// without janitor; expired entries are overwritten on refresh.
func NewResolver(src Source, fresh cache.Cache, opts ...Option) *Resolver {
	if fresh == nil {
		fresh = cache.NewMemoryCache(0)
	}
	r := &Resolver{
		source:       src,
		fresh:        fresh,
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		logger:       log.WithComponent("versions"),
		tracer:       telemetry.Tracer("mcfleet/versions"),
		now:          time.Now,
		lastKnown:    make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = resilience.NewCircuitBreaker("catalog", 3, 30*time.Second)
	}
	return r
}

// Engines returns the engine-version list, newest first.
func (r *Resolver) Engines(ctx context.Context) (Engines, error) {
	data, at, stale, err := load(ctx, r, keyEngines, "engines", false, r.source.Engines)
	if err != nil {
		return Engines{}, err
	}
	return Engines{Versions: data, FetchedAt: at, Stale: stale}, nil
}

// Loaders returns the builds of kind for engine.
func (r *Resolver) Loaders(ctx context.Context, kind LoaderKind, engine string) (Loaders, error) {
	if kind == LoaderNone {
		return Loaders{Kind: kind, Engine: engine}, nil
	}
	key := fmt.Sprintf("catalog:loaders:%s:%s", kind, engine)
	data, at, stale, err := load(ctx, r, key, string(kind), false, func(ctx context.Context) ([]LoaderBuild, error) {
		return r.source.Loaders(ctx, kind, engine)
	})
	if err != nil {
		return Loaders{}, err
	}
	return Loaders{Kind: kind, Engine: engine, Builds: data, FetchedAt: at, Stale: stale}, nil
}

// Refresh refetches the engine list regardless of cache freshness.
func (r *Resolver) Refresh(ctx context.Context) error {
	_, _, stale, err := load(ctx, r, keyEngines, "engines", true, r.source.Engines)
	if err != nil {
		return err
	}
	if stale {
		return fmt.Errorf("refresh engines: source failed, serving snapshot")
	}
	return nil
}

type envelope[T any] struct {
	FetchedAt time.Time `json:"fetched_at"`
	Data      T         `json:"data"`
}

func load[T any](ctx context.Context, r *Resolver, key, kind string, force bool, fetch func(context.Context) (T, error)) (data T, at time.Time, stale bool, err error) {
	ctx, span := r.tracer.Start(ctx, "catalog.load")
	defer func() {
		span.SetAttributes(telemetry.CatalogAttributes(key, stale)...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var zero T
	if !force {
		if raw, ok := r.fresh.Get(ctx, key); ok {
			var env envelope[T]
			if err := json.Unmarshal(raw, &env); err == nil {
				metrics.IncCatalogServed(kind, "fresh")
				return env.Data, env.FetchedAt, false, nil
			}
			r.fresh.Delete(ctx, key)
		}
	}

	v, fetchErr, _ := r.group.Do(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()

		var data T
		err := r.breaker.Execute(fctx, func(ctx context.Context) error {
			var err error
			data, err = fetch(ctx)
			return err
		})
		if err != nil {
			metrics.IncCatalogFetch(kind, "error")
			return nil, err
		}
		metrics.IncCatalogFetch(kind, "ok")

		raw, err := json.Marshal(envelope[T]{FetchedAt: r.now(), Data: data})
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		r.fresh.Set(fctx, key, raw, r.ttl)
		r.mu.Lock()
		r.lastKnown[key] = raw
		r.mu.Unlock()
		return raw, nil
	})

	raw, _ := v.([]byte)
	if fetchErr != nil {
		r.mu.RLock()
		snapshot, ok := r.lastKnown[key]
		r.mu.RUnlock()
		if !ok {
			metrics.IncCatalogServed(kind, "unavailable")
			return zero, time.Time{}, false, fmt.Errorf("%w: %s: %w", ErrCatalogUnavailable, key, fetchErr)
		}
		r.logger.Warn().
			Err(fetchErr).
			Str(log.FieldEvent, "catalog.stale").
			Str("key", key).
			Msg("version source failed, serving last known catalog")
		raw, stale = snapshot, true
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, time.Time{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	if stale {
		metrics.IncCatalogServed(kind, "stale")
	} else {
		metrics.IncCatalogServed(kind, "fresh")
	}
	return env.Data, env.FetchedAt, stale, nil
}
