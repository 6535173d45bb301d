// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus is the typed event bus that mediates every interaction in the
// control plane. Request codes route to exactly one handler and produce a
// correlated reply; notification codes fan out to any number of subscribers.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/metrics"
	"github.com/ManuGH/mcfleet/internal/telemetry"
)

const (
	dropLogEvery = 100

	DefaultQueueSize      = 256
	DefaultRequestTimeout = 10 * time.Second
)

// Handler serves one request code. The returned value becomes the reply's
// result argument.
type Handler interface {
	Handle(ctx context.Context, ev Event) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, ev Event) (any, error) {
	return f(ctx, ev)
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize sets the per-subscriber buffer.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithRequestTimeout sets the timeout used when Request is given zero.
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.requestTimeout = d
		}
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(b *Bus) {
		if t != nil {
			b.tracer = t
		}
	}
}

// Bus is the in-process event bus.
type Bus struct {
	catalog        *Catalog
	queueSize      int
	requestTimeout time.Duration
	tracer         trace.Tracer

	mu       sync.RWMutex
	handlers map[Code]Handler
	subs     map[Code]map[*Subscription]struct{}
	all      map[*Subscription]struct{}
	closed   bool

	inflight  sync.WaitGroup
	dropCount atomic.Uint64
}

// New creates a bus over the given catalog.
func New(catalog *Catalog, opts ...Option) *Bus {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	b := &Bus{
		catalog:        catalog,
		queueSize:      DefaultQueueSize,
		requestTimeout: DefaultRequestTimeout,
		tracer:         otel.Tracer("mcfleet.bus"),
		handlers:       make(map[Code]Handler),
		subs:           make(map[Code]map[*Subscription]struct{}),
		all:            make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Catalog returns the bus's event declarations.
func (b *Bus) Catalog() *Catalog { return b.catalog }

// Register installs the single handler for a request code.
func (b *Bus) Register(code Code, h Handler) error {
	spec, ok := b.catalog.Lookup(code)
	if !ok {
		return fmt.Errorf("register %s: %w", code, schemaErr(code.String(), "", "unknown event code"))
	}
	if spec.Kind != KindRequest {
		return fmt.Errorf("register %s: %w", spec.Name, schemaErr(spec.Name, "", "%s codes cannot have a handler", spec.Kind))
	}
	if h == nil {
		return fmt.Errorf("register %s: nil handler", spec.Name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if _, dup := b.handlers[code]; dup {
		return fmt.Errorf("register %s: %w", spec.Name, ErrAlreadyRegistered)
	}
	b.handlers[code] = h
	return nil
}

// Unregister removes the handler for code, if any.
func (b *Bus) Unregister(code Code) {
	b.mu.Lock()
	delete(b.handlers, code)
	b.mu.Unlock()
}

// Subscribe returns a subscription receiving the given notification or reply
// codes in publish order.
func (b *Bus) Subscribe(codes ...Code) (*Subscription, error) {
	if len(codes) == 0 {
		return nil, errors.New("subscribe: no codes given")
	}
	for _, c := range codes {
		spec, ok := b.catalog.Lookup(c)
		if !ok {
			return nil, fmt.Errorf("subscribe %s: %w", c, schemaErr(c.String(), "", "unknown event code"))
		}
		if spec.Kind == KindRequest {
			return nil, fmt.Errorf("subscribe %s: %w", spec.Name, schemaErr(spec.Name, "", "request codes route to a handler"))
		}
	}

	sub := b.newSubscription(codes)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	for _, c := range codes {
		set := b.subs[c]
		if set == nil {
			set = make(map[*Subscription]struct{})
			b.subs[c] = set
		}
		set[sub] = struct{}{}
	}
	return sub, nil
}

// SubscribeAll returns a subscription receiving every notification and reply.
func (b *Bus) SubscribeAll() (*Subscription, error) {
	sub := b.newSubscription(nil)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.all[sub] = struct{}{}
	return sub, nil
}

// Publish validates ev and delivers it without blocking. Notifications fan
// out to subscribers; a request code is dispatched to its handler in the
// background and its result discarded.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	ev, spec, err := b.prepare(ev)
	if err != nil {
		return err
	}

	if spec.Kind == KindRequest {
		h, err := b.handler(spec)
		if err != nil {
			return err
		}
		b.dispatch(ctx, h, ev, spec)
		return nil
	}
	return b.deliver(ev)
}

// Request dispatches a request event to its handler and waits for the
// correlated reply. A timeout or cancelled ctx ends only the wait; the
// handler runs to completion.
func (b *Bus) Request(ctx context.Context, ev Event, timeout time.Duration) (Event, error) {
	if ctx == nil {
		return Event{}, fmt.Errorf("request context is nil")
	}
	if timeout <= 0 {
		timeout = b.requestTimeout
	}
	ev, spec, err := b.prepare(ev)
	if err != nil {
		return Event{}, err
	}
	if spec.Kind != KindRequest {
		return Event{}, schemaErr(spec.Name, "", "%s codes have no reply", spec.Kind)
	}
	h, err := b.handler(spec)
	if err != nil {
		metrics.ObserveBusRequest(spec.Name, "not_routable", 0)
		return Event{}, err
	}
	ev.Correlation = uuid.NewString()

	ctx, span := b.tracer.Start(ctx, "bus.request "+spec.Name, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(telemetry.BusRequestAttributes(spec.Code.String(), spec.Name, ev.Correlation, ev.ServerName())...)

	ctx = log.ContextWithCorrelationID(ctx, ev.Correlation)
	started := time.Now()
	done := b.dispatch(ctx, h, ev, spec)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var out outcome
	select {
	case out = <-done:
	case <-timer.C:
		metrics.ObserveBusRequest(spec.Name, "timeout", time.Since(started).Seconds())
		span.SetStatus(codes.Error, "timeout")
		return Event{}, fmt.Errorf("%s after %s: %w", spec.Name, timeout, ErrTimeout)
	case <-ctx.Done():
		metrics.ObserveBusRequest(spec.Name, "canceled", time.Since(started).Seconds())
		span.SetStatus(codes.Error, "canceled")
		return Event{}, fmt.Errorf("%s: %w", spec.Name, ctx.Err())
	}

	if out.err != nil {
		metrics.ObserveBusRequest(spec.Name, "error", time.Since(started).Seconds())
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		return Event{}, out.err
	}

	reply := Event{
		Code:        spec.Code.Reply(),
		Args:        Args{ArgResult: out.result},
		Time:        time.Now(),
		Correlation: ev.Correlation,
	}
	if err := b.catalog.Validate(&reply); err != nil {
		metrics.ObserveBusRequest(spec.Name, "bad_reply", time.Since(started).Seconds())
		span.SetStatus(codes.Error, "bad reply")
		return Event{}, err
	}
	metrics.ObserveBusRequest(spec.Name, "ok", time.Since(started).Seconds())
	span.SetStatus(codes.Ok, "")

	if err := b.deliver(reply); err != nil && !errors.Is(err, ErrClosed) {
		return Event{}, err
	}
	return reply, nil
}

// Close detaches every subscription, closing their channels. In-flight
// handlers are awaited until ctx ends.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			sub.closeLocked()
		}
	}
	for sub := range b.all {
		sub.closeLocked()
	}
	b.subs = make(map[Code]map[*Subscription]struct{})
	b.all = make(map[*Subscription]struct{})
	b.handlers = make(map[Code]Handler)
	b.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bus close: handlers still running: %w", ctx.Err())
	}
}

func (b *Bus) prepare(ev Event) (Event, Spec, error) {
	ev = ev.clone()
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if err := b.catalog.Validate(&ev); err != nil {
		return Event{}, Spec{}, err
	}
	spec, _ := b.catalog.Lookup(ev.Code)
	return ev, spec, nil
}

func (b *Bus) handler(spec Spec) (Handler, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	h, ok := b.handlers[spec.Code]
	if !ok {
		return nil, fmt.Errorf("%s: %w", spec.Name, ErrNotRoutable)
	}
	return h, nil
}

type outcome struct {
	result any
	err    error
}

func (b *Bus) dispatch(ctx context.Context, h Handler, ev Event, spec Spec) <-chan outcome {
	done := make(chan outcome, 1)
	hctx := context.WithoutCancel(ctx)
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		res, err := invoke(hctx, h, ev)
		if err != nil {
			logger := log.WithComponentFromContext(hctx, "bus")
			logger.Debug().
				Err(err).
				Str(log.FieldEvent, "bus.handler_failed").
				Str(log.FieldCodeName, spec.Name).
				Msg("request handler returned an error")
		}
		done <- outcome{result: res, err: err}
	}()
	return done
}

func invoke(ctx context.Context, h Handler, ev Event) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic for %s: %v", ev.Name, r)
		}
	}()
	return h.Handle(ctx, ev)
}

func (b *Bus) deliver(ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	metrics.BusPublishedTotal.WithLabelValues(ev.Name).Inc()
	for sub := range b.subs[ev.Code] {
		b.offer(sub, ev)
	}
	for sub := range b.all {
		b.offer(sub, ev)
	}
	return nil
}

// offer must be called with b.mu held for reading.
func (b *Bus) offer(sub *Subscription, ev Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}
	sub.dropped.Add(1)
	metrics.IncBusDropReason(ev.Name, "queue_full")
	count := b.dropCount.Add(1)
	if count%dropLogEvery == 0 {
		log.L().Warn().
			Str(log.FieldEvent, "bus.dropped").
			Str(log.FieldCodeName, ev.Name).
			Uint64("dropped", count).
			Msg("subscriber queue full, dropping events")
	}
}
