// SPDX-License-Identifier: MIT

// Package audit writes structured audit records for fleet changes and
// player administration. It follows the WHO/WHAT/WHEN pattern.
package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mcfleet/internal/bus"
	"github.com/ManuGH/mcfleet/internal/log"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Configuration events
	EventConfigReload      EventType = "config.reload"
	EventConfigReloadError EventType = "config.reload.error"

	// Workload definition events
	EventWorkloadCreated EventType = "workload.created"
	EventWorkloadDeleted EventType = "workload.deleted"
	EventWorkloadRenamed EventType = "workload.renamed"

	// Lifecycle outcomes
	EventWorkloadStarted EventType = "workload.started"
	EventWorkloadStopped EventType = "workload.stopped"
	EventWorkloadCrashed EventType = "workload.crashed"

	// Player administration
	EventPlayerKicked   EventType = "player.kicked"
	EventPlayerBanned   EventType = "player.banned"
	EventPlayerPardoned EventType = "player.pardoned"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Actor     string            `json:"actor"`             // WHO: "operator", "system" or a workload name
	Action    string            `json:"action"`            // WHAT: human-readable action description
	Resource  string            `json:"resource"`          // affected workload or config file
	Result    string            `json:"result"`            // success, failure, forced
	Details   map[string]string `json:"details,omitempty"` // Additional context
}

// Logger provides audit logging functionality.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	return newLogger(log.WithComponent("audit"))
}

func newLogger(base zerolog.Logger) *Logger {
	return &Logger{logger: base.With().Str("log_type", "audit").Logger()}
}

// Log writes an audit event to the audit log.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logEvent := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	for key, value := range event.Details {
		logEvent.Str(key, value)
	}

	logEvent.Msg("audit event")
}

// ConfigReload logs a configuration reload event.
func (l *Logger) ConfigReload(actor, resource string, err error, details map[string]string) {
	ev := Event{
		Type:     EventConfigReload,
		Actor:    actor,
		Action:   "reloaded configuration",
		Resource: resource,
		Result:   "success",
		Details:  details,
	}
	if err != nil {
		ev.Type = EventConfigReloadError
		ev.Result = "failure"
		if ev.Details == nil {
			ev.Details = map[string]string{}
		}
		ev.Details["error"] = err.Error()
	}
	l.Log(ev)
}

// Codes lists the bus notifications that produce audit records.
func Codes() []bus.Code {
	return []bus.Code{
		bus.ServerCreated, bus.ServerDeleted, bus.ServerRenamed,
		bus.ServerStarted, bus.ServerStopped, bus.ServerCrashed,
		bus.PlayerKicked, bus.PlayerBanned, bus.PlayerPardoned,
	}
}

// FromBus maps a notification to an audit record. ok is false for codes
// outside Codes.
func FromBus(ev bus.Event) (Event, bool) {
	out := Event{
		Timestamp: ev.Time,
		Actor:     "system",
		Resource:  ev.ServerName(),
		Result:    "success",
	}
	switch ev.Code {
	case bus.ServerCreated:
		out.Type, out.Actor, out.Action = EventWorkloadCreated, "operator", "created workload"
		out.Details = map[string]string{
			"path":           ev.Str(bus.ArgServerPath),
			"engine_version": ev.Str(bus.ArgEngineVersion),
		}
	case bus.ServerDeleted:
		out.Type, out.Actor, out.Action = EventWorkloadDeleted, "operator", "deleted workload"
	case bus.ServerRenamed:
		out.Type, out.Actor, out.Action = EventWorkloadRenamed, "operator", "renamed workload"
		out.Details = map[string]string{log.FieldNewName: ev.Str(bus.ArgNewName)}
	case bus.ServerStarted:
		out.Type, out.Action = EventWorkloadStarted, "workload reached running"
	case bus.ServerStopped:
		out.Type, out.Action = EventWorkloadStopped, "workload stopped"
		if ev.Bool(bus.ArgForced) {
			out.Result = "forced"
		}
		out.Details = map[string]string{log.FieldExitCode: strconv.FormatInt(ev.Int(bus.ArgExitCode), 10)}
	case bus.ServerCrashed:
		out.Type, out.Action, out.Result = EventWorkloadCrashed, "workload exited unexpectedly", "failure"
		out.Details = map[string]string{
			log.FieldExitCode: strconv.FormatInt(ev.Int(bus.ArgExitCode), 10),
			"reason":          ev.Str(bus.ArgReason),
		}
	case bus.PlayerKicked:
		out.Type, out.Actor, out.Action = EventPlayerKicked, ev.ServerName(), "kicked player"
		out.Details = map[string]string{log.FieldPlayer: ev.Str(bus.ArgPlayerName), "reason": ev.Str(bus.ArgReason)}
	case bus.PlayerBanned:
		out.Type, out.Actor, out.Action = EventPlayerBanned, ev.ServerName(), "banned player"
		out.Details = map[string]string{log.FieldPlayer: ev.Str(bus.ArgPlayerName), "reason": ev.Str(bus.ArgReason)}
	case bus.PlayerPardoned:
		out.Type, out.Actor, out.Action = EventPlayerPardoned, ev.ServerName(), "pardoned player"
		out.Details = map[string]string{log.FieldPlayer: ev.Str(bus.ArgPlayerName)}
	default:
		return Event{}, false
	}
	return out, true
}

// Follow records every event of sub until the subscription closes or ctx
// ends.
func (l *Logger) Follow(ctx context.Context, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if rec, ok := FromBus(ev); ok {
				l.Log(rec)
			}
		}
	}
}
