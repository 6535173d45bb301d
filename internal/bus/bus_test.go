// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/ManuGH/mcfleet/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func newTestBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	b := New(DefaultCatalog(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, b.Close(ctx))
	})
	return b
}

func startEvent(name string) Event {
	return NewEvent(ServerStart, Args{ArgServerName: name})
}

func TestRequestReturnsCorrelatedReply(t *testing.T) {
	b := newTestBus(t)
	var seen Event
	require.NoError(t, b.Register(ServerStart, HandlerFunc(func(ctx context.Context, ev Event) (any, error) {
		seen = ev
		return true, nil
	})))

	reply, err := b.Request(context.Background(), startEvent("survival"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, ServerStart.Reply(), reply.Code)
	assert.Equal(t, "server.start.reply", reply.Name)
	assert.Equal(t, true, reply.Result())
	assert.NotEmpty(t, reply.Correlation)
	assert.Equal(t, seen.Correlation, reply.Correlation)
	assert.Equal(t, "survival", seen.ServerName())
}

func TestRequestFillsMissingTimestamp(t *testing.T) {
	b := newTestBus(t)
	var ts time.Time
	require.NoError(t, b.Register(ServerPing, HandlerFunc(func(ctx context.Context, ev Event) (any, error) {
		ts = ev.Time
		return "STOPPED", nil
	})))

	ev := Event{Code: ServerPing, Args: Args{ArgServerName: "a"}}
	reply, err := b.Request(context.Background(), ev, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "STOPPED", reply.Result())
	assert.False(t, ts.IsZero())
}

func TestRequestNotRoutable(t *testing.T) {
	b := newTestBus(t)
	_, err := b.Request(context.Background(), startEvent("x"), time.Second)
	require.ErrorIs(t, err, ErrNotRoutable)
}

func TestRegisterRejectsSecondHandlerAndNotifications(t *testing.T) {
	b := newTestBus(t)
	h := HandlerFunc(func(context.Context, Event) (any, error) { return true, nil })
	require.NoError(t, b.Register(ServerStop, h))
	require.ErrorIs(t, b.Register(ServerStop, h), ErrAlreadyRegistered)
	require.ErrorIs(t, b.Register(ServerStarted, h), ErrSchema)
	require.ErrorIs(t, b.Register(Code(0x9999), h), ErrSchema)
}

func TestSchemaViolationRejectedBeforeDelivery(t *testing.T) {
	b := newTestBus(t)
	var calls atomic.Int32
	require.NoError(t, b.Register(ServerCreate, HandlerFunc(func(context.Context, Event) (any, error) {
		calls.Add(1)
		return true, nil
	})))

	tests := []struct {
		name string
		args Args
	}{
		{"missing", Args{ArgServerName: "a"}},
		{"wrong type", Args{
			ArgServerName: "a", ArgServerPath: "/srv/a", ArgEngineVersion: "1.20.1",
			ArgLoaderKind: "none", ArgLoaderVersion: "", ArgMemoryMB: "2048",
			ArgAutostart: false, ArgAllowBugged: false,
		}},
		{"undeclared", Args{
			ArgServerName: "a", ArgServerPath: "/srv/a", ArgEngineVersion: "1.20.1",
			ArgLoaderKind: "none", ArgLoaderVersion: "", ArgMemoryMB: 2048,
			ArgAutostart: false, ArgAllowBugged: false, "color": "red",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Request(context.Background(), NewEvent(ServerCreate, tt.args), time.Second)
			require.ErrorIs(t, err, ErrSchema)
			var se *SchemaError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "server.create", se.Event)
		})
	}
	assert.Zero(t, calls.Load())

	err := b.Publish(context.Background(), NewEvent(ServerStopped, Args{ArgServerName: "a"}))
	require.ErrorIs(t, err, ErrSchema)
}

func TestIntArgumentsAreNormalised(t *testing.T) {
	b := newTestBus(t)
	sub, err := b.Subscribe(ServerStopped)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), NewEvent(ServerStopped, Args{
		ArgServerName: "a", ArgExitCode: 0, ArgForced: false,
	})))
	ev := <-sub.C()
	assert.IsType(t, int64(0), ev.Value(ArgExitCode))
	assert.Equal(t, int64(0), ev.Int(ArgExitCode))
}

func TestRequestTimeoutDoesNotCancelHandler(t *testing.T) {
	b := newTestBus(t)
	release := make(chan struct{})
	finished := make(chan error, 1)
	require.NoError(t, b.Register(ServerStop, HandlerFunc(func(ctx context.Context, ev Event) (any, error) {
		<-release
		finished <- ctx.Err()
		return true, nil
	})))

	_, err := b.Request(context.Background(), NewEvent(ServerStop, Args{ArgServerName: "a"}), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	close(release)
	select {
	case err := <-finished:
		assert.NoError(t, err, "handler context must not be cancelled by the requester")
	case <-time.After(time.Second):
		t.Fatal("handler did not finish")
	}
}

func TestRequestCallerCancelEndsOnlyWait(t *testing.T) {
	b := newTestBus(t)
	release := make(chan struct{})
	done := make(chan struct{})
	require.NoError(t, b.Register(ServerStop, HandlerFunc(func(ctx context.Context, ev Event) (any, error) {
		defer close(done)
		<-release
		return true, nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := b.Request(ctx, NewEvent(ServerStop, Args{ArgServerName: "a"}), time.Minute)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done
}

func TestHandlerErrorReturnedUnchanged(t *testing.T) {
	b := newTestBus(t)
	sentinel := errors.New("busy")
	require.NoError(t, b.Register(ServerStart, HandlerFunc(func(context.Context, Event) (any, error) {
		return nil, sentinel
	})))
	_, err := b.Request(context.Background(), startEvent("a"), time.Second)
	require.ErrorIs(t, err, sentinel)
}

func TestHandlerPanicBecomesError(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Register(ServerStart, HandlerFunc(func(context.Context, Event) (any, error) {
		panic("boom")
	})))
	_, err := b.Request(context.Background(), startEvent("a"), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestReplyKindIsEnforced(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Register(ServerStart, HandlerFunc(func(context.Context, Event) (any, error) {
		return "yes", nil
	})))
	_, err := b.Request(context.Background(), startEvent("a"), time.Second)
	require.ErrorIs(t, err, ErrSchema)
}

func TestRepliesFanOutToObservers(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Register(ServerStart, HandlerFunc(func(context.Context, Event) (any, error) {
		return true, nil
	})))
	sub, err := b.Subscribe(ServerStart.Reply())
	require.NoError(t, err)

	reply, err := b.Request(context.Background(), startEvent("a"), time.Second)
	require.NoError(t, err)
	got := <-sub.C()
	assert.Equal(t, reply.Correlation, got.Correlation)
}

func TestSubscribeRejectsRequestCodes(t *testing.T) {
	b := newTestBus(t)
	_, err := b.Subscribe(ServerStart)
	require.ErrorIs(t, err, ErrSchema)
	_, err = b.Subscribe()
	require.Error(t, err)
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	b := newTestBus(t)
	sub, err := b.Subscribe(ConsoleLogReceived)
	require.NoError(t, err)
	all, err := b.SubscribeAll()
	require.NoError(t, err)

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, b.Publish(context.Background(), NewEvent(ConsoleLogReceived, Args{
			ArgServerName: "a", ArgLevel: "INFO", ArgLine: string(rune('A' + i%26)),
		})))
	}
	for _, s := range []*Subscription{sub, all} {
		for i := 0; i < n; i++ {
			ev := <-s.C()
			assert.Equal(t, string(rune('A'+i%26)), ev.Str(ArgLine))
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := newTestBus(t, WithQueueSize(2))
	slow, err := b.Subscribe(PlayerJoined)
	require.NoError(t, err)
	fast, err := b.Subscribe(PlayerJoined)
	require.NoError(t, err)

	before := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("player.joined", "queue_full"))

	ev := NewEvent(PlayerJoined, Args{ArgServerName: "a", ArgPlayerName: "Steve"})
	for i := 0; i < 2; i++ {
		require.NoError(t, b.Publish(context.Background(), ev))
		<-fast.C()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, b.Publish(context.Background(), ev))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Equal(t, uint64(1), slow.Dropped())
	assert.Zero(t, fast.Dropped())
	<-fast.C()
	after := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("player.joined", "queue_full"))
	assert.Equal(t, before+1, after)
}

func TestPublishRequestCodeDispatchesToHandler(t *testing.T) {
	b := newTestBus(t)
	called := make(chan string, 1)
	require.NoError(t, b.Register(ServerStart, HandlerFunc(func(ctx context.Context, ev Event) (any, error) {
		called <- ev.ServerName()
		return true, nil
	})))
	require.NoError(t, b.Publish(context.Background(), startEvent("lobby")))
	select {
	case name := <-called:
		assert.Equal(t, "lobby", name)
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestPublishRejectsNilContext(t *testing.T) {
	b := newTestBus(t)
	//nolint:staticcheck // nil context is the case under test
	err := b.Publish(nil, startEvent("a"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "context is nil")
}

func TestSubscriptionCloseIsIdempotentUnderPublish(t *testing.T) {
	b := newTestBus(t, WithQueueSize(1))
	sub, err := b.Subscribe(PlayerLeft)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ev := NewEvent(PlayerLeft, Args{ArgServerName: "a", ArgPlayerName: "Alex"})
		for i := 0; i < 500; i++ {
			_ = b.Publish(context.Background(), ev)
		}
	}()
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	wg.Wait()

	for range sub.C() {
	}
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	b := New(DefaultCatalog())
	sub, err := b.SubscribeAll()
	require.NoError(t, err)
	require.NoError(t, b.Close(context.Background()))

	_, open := <-sub.C()
	assert.False(t, open)
	require.ErrorIs(t, b.Publish(context.Background(), NewEvent(PlayerLeft, Args{ArgServerName: "a", ArgPlayerName: "b"})), ErrClosed)
	_, err = b.Request(context.Background(), startEvent("a"), time.Second)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, b.Register(ServerStart, HandlerFunc(func(context.Context, Event) (any, error) { return true, nil })), ErrClosed)
	require.NoError(t, b.Close(context.Background()))
}

func TestRequestOpensSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	b := newTestBus(t, WithTracer(tp.Tracer("test")))
	require.NoError(t, b.Register(ServerStart, HandlerFunc(func(context.Context, Event) (any, error) { return true, nil })))
	reply, err := b.Request(context.Background(), startEvent("a"), time.Second)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "bus.request server.start", spans[0].Name())
	var corr string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "bus.correlation" {
			corr = kv.Value.AsString()
		}
	}
	assert.Equal(t, reply.Correlation, corr)
}
