// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package console bridges a server process's text streams and the event
// bus: it writes operator commands to stdin and turns every stdout line into
// exactly one structured event.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/mcfleet/internal/bus"
	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/metrics"
)

const (
	maxLineBytes        = 1 << 20
	DefaultHistoryLines = 200
	// DefaultSeedTimeout bounds the wait for the answer to a seed command.
	DefaultSeedTimeout = 5 * time.Second
)

var (
	ErrInvalidLine = errors.New("console: invalid line")
	ErrClosed      = errors.New("console: input closed")
	ErrNoSeed      = errors.New("console: no seed reported")
)

// Publisher is the part of the bus the bridge needs.
type Publisher interface {
	Publish(ctx context.Context, ev bus.Event) error
}

// Config describes one bridge.
type Config struct {
	Name         string
	Rules        RuleSource
	HistoryLines int
	CommandRate  rate.Limit // zero means unlimited
	CommandBurst int

	// OnStarted fires once, on the first start-marker line.
	OnStarted func()
	// OnStopping fires on every stop-marker line.
	OnStopping func()
}

// Bridge owns a process's stdin writer and stdout reader.
type Bridge struct {
	cfg     Config
	stdin   io.WriteCloser
	stdout  io.Reader
	pub     Publisher
	ring    *LineRing
	limiter *rate.Limiter
	logger  zerolog.Logger

	writeMu sync.Mutex
	closed  bool

	startOnce   sync.Once
	startedOnce sync.Once
	stopSeen    atomic.Bool
	done        chan struct{}

	// online and seed are derived from the output stream.
	stateMu   sync.Mutex
	online    map[string]struct{}
	seed      string
	seedKnown chan struct{}
}

// NewBridge wires a bridge; Start begins reading.
func NewBridge(cfg Config, stdin io.WriteCloser, stdout io.Reader, pub Publisher) *Bridge {
	if cfg.Rules == nil {
		cfg.Rules = StaticRules{Set: DefaultRules()}
	}
	if cfg.HistoryLines <= 0 {
		cfg.HistoryLines = DefaultHistoryLines
	}
	limit, burst := cfg.CommandRate, cfg.CommandBurst
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Bridge{
		cfg:     cfg,
		stdin:   stdin,
		stdout:  stdout,
		pub:     pub,
		ring:    NewLineRing(cfg.HistoryLines),
		limiter: rate.NewLimiter(limit, burst),
		logger:  log.WithComponent("console").With().Str(log.FieldServerName, cfg.Name).Logger(),
		done:    make(chan struct{}),

		online:    make(map[string]struct{}),
		seedKnown: make(chan struct{}),
	}
}

// Start launches the single reader goroutine.
func (b *Bridge) Start() {
	b.startOnce.Do(func() { go b.readLoop() })
}

// Done is closed after stdout reached EOF and console.closed was published.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// History returns up to n of the most recent lines.
func (b *Bridge) History(n int) []string { return b.ring.LastN(n) }

// Lines is the number of lines read so far.
func (b *Bridge) Lines() int64 { return b.ring.Total() }

// StopSeen reports whether a stop-marker line was observed.
func (b *Bridge) StopSeen() bool { return b.stopSeen.Load() }

// Players returns the online players, sorted. The set follows join, leave,
// kick and ban lines and empties when the stream closes.
func (b *Bridge) Players() []string {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	out := make([]string, 0, len(b.online))
	for p := range b.online {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Seed returns the world seed. The first call asks the server with the
// seed command and waits up to DefaultSeedTimeout for the answer; later
// calls return the remembered value.
func (b *Bridge) Seed(ctx context.Context) (string, error) {
	b.stateMu.Lock()
	seed := b.seed
	b.stateMu.Unlock()
	if seed != "" {
		return seed, nil
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultSeedTimeout)
	defer cancel()
	if err := b.Send(ctx, SeedCommand); err != nil {
		return "", err
	}
	select {
	case <-b.seedKnown:
	case <-b.done:
		// The answer may have been the last line.
		select {
		case <-b.seedKnown:
		default:
			return "", fmt.Errorf("%w: stream closed", ErrNoSeed)
		}
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrNoSeed, ctx.Err())
	}
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.seed, nil
}

// Send writes one command line to the process. Writes are serialised and
// rate limited; waiting for a token honours ctx.
func (b *Bridge) Send(ctx context.Context, line string) error {
	if strings.ContainsAny(line, "\r\n") {
		metrics.IncConsoleCommand("invalid")
		return fmt.Errorf("%w: embedded line break", ErrInvalidLine)
	}
	if err := b.limiter.Wait(ctx); err != nil {
		metrics.IncConsoleCommand("rate_limited")
		return fmt.Errorf("console rate limit: %w", err)
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.closed {
		metrics.IncConsoleCommand("closed")
		return ErrClosed
	}
	if _, err := io.WriteString(b.stdin, line+"\n"); err != nil {
		metrics.IncConsoleCommand("error")
		return fmt.Errorf("write console: %w", err)
	}
	metrics.IncConsoleCommand("sent")
	b.logger.Debug().Str(log.FieldEvent, "console.command_sent").Str("command", line).Msg("console command sent")
	return nil
}

// CloseInput closes stdin. Later Sends fail with ErrClosed.
func (b *Bridge) CloseInput() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.stdin.Close()
}

func (b *Bridge) readLoop() {
	defer close(b.done)

	r := bufio.NewReaderSize(b.stdout, 64*1024)
	var buf []byte
	truncated := false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if len(chunk) > 0 && !truncated {
			room := maxLineBytes - len(buf)
			if len(chunk) > room {
				chunk, truncated = chunk[:room], true
			}
			buf = append(buf, chunk...)
		}
		if err != nil {
			if len(buf) > 0 {
				b.handle(string(buf))
			}
			if !errors.Is(err, io.EOF) {
				b.logger.Warn().Err(err).Str(log.FieldEvent, "console.read_failed").Msg("console stream ended with error")
			}
			break
		}
		if isPrefix {
			continue
		}
		if truncated {
			b.logger.Warn().Str(log.FieldEvent, "console.line_truncated").Int("max_bytes", maxLineBytes).Msg("console line truncated")
		}
		b.handle(string(buf))
		buf, truncated = buf[:0], false
	}

	b.stateMu.Lock()
	clear(b.online)
	b.stateMu.Unlock()

	b.publish(bus.NewEvent(bus.ConsoleClosed, bus.Args{
		bus.ArgServerName: b.cfg.Name,
		bus.ArgLines:      b.ring.Total(),
	}))
}

func (b *Bridge) handle(raw string) {
	raw = strings.TrimRight(raw, "\r")
	b.ring.Add(raw)

	l := b.cfg.Rules.Rules().Classify(raw)
	metrics.IncConsoleLine(string(l.Kind))
	b.track(l)

	name := b.cfg.Name
	switch l.Kind {
	case KindJoined:
		b.publish(bus.NewEvent(bus.PlayerJoined, bus.Args{bus.ArgServerName: name, bus.ArgPlayerName: l.Player}))
	case KindLeft:
		b.publish(bus.NewEvent(bus.PlayerLeft, bus.Args{bus.ArgServerName: name, bus.ArgPlayerName: l.Player}))
	case KindKicked:
		b.publish(bus.NewEvent(bus.PlayerKicked, bus.Args{bus.ArgServerName: name, bus.ArgPlayerName: l.Player, bus.ArgReason: l.Reason}))
	case KindBanned:
		b.publish(bus.NewEvent(bus.PlayerBanned, bus.Args{bus.ArgServerName: name, bus.ArgPlayerName: l.Player, bus.ArgReason: l.Reason}))
	case KindPardoned:
		b.publish(bus.NewEvent(bus.PlayerPardoned, bus.Args{bus.ArgServerName: name, bus.ArgPlayerName: l.Player}))
	case KindChat:
		b.publish(bus.NewEvent(bus.ConsoleMessageReceived, bus.Args{bus.ArgServerName: name, bus.ArgPlayerName: l.Player, bus.ArgMessage: l.Message}))
	default:
		if l.Kind == KindStarted {
			b.startedOnce.Do(func() {
				if b.cfg.OnStarted != nil {
					b.cfg.OnStarted()
				}
			})
		}
		if l.Kind == KindStopping {
			b.stopSeen.Store(true)
			if b.cfg.OnStopping != nil {
				b.cfg.OnStopping()
			}
		}
		b.publish(bus.NewEvent(bus.ConsoleLogReceived, bus.Args{bus.ArgServerName: name, bus.ArgLevel: l.Level, bus.ArgLine: raw}))
	}
}

func (b *Bridge) track(l Line) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	switch l.Kind {
	case KindJoined:
		b.online[l.Player] = struct{}{}
	case KindLeft, KindKicked, KindBanned:
		delete(b.online, l.Player)
	case KindSeed:
		if b.seed == "" {
			b.seed = l.Seed
			close(b.seedKnown)
		}
	}
}

func (b *Bridge) publish(ev bus.Event) {
	if err := b.pub.Publish(context.Background(), ev); err != nil && !errors.Is(err, bus.ErrClosed) {
		b.logger.Error().Err(err).Str(log.FieldEvent, "console.publish_failed").Msg("failed to publish console event")
	}
}
