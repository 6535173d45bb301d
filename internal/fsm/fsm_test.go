// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type state string
type event string

func table() []Transition[state, event] {
	return []Transition[state, event]{
		{From: "off", Event: "on", To: "lit"},
		{From: "lit", Event: "off", To: "off"},
	}
}

func TestFireAppliesKnownEdge(t *testing.T) {
	m := MustNew[state, event]("off", table())
	to, err := m.Fire(context.Background(), "on")
	require.NoError(t, err)
	require.Equal(t, state("lit"), to)
	require.Equal(t, state("lit"), m.State())
}

func TestFireRejectsUnknownEdge(t *testing.T) {
	m := MustNew[state, event]("off", table())
	from, err := m.Fire(context.Background(), "off")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, state("off"), from)
	require.False(t, m.Can("off"))
	require.True(t, m.Can("on"))
}

func TestDuplicateTransitionRejected(t *testing.T) {
	_, err := New[state, event]("off", append(table(), Transition[state, event]{From: "off", Event: "on", To: "off"}))
	require.Error(t, err)
}

func TestGuardBlocksTransition(t *testing.T) {
	denied := errors.New("denied")
	m := MustNew[state, event]("off", []Transition[state, event]{{
		From: "off", Event: "on", To: "lit",
		Guard: func(context.Context, state, event) error { return denied },
	}})
	_, err := m.Fire(context.Background(), "on")
	require.ErrorIs(t, err, denied)
	require.Equal(t, state("off"), m.State())
}

func TestObserverSeesEveryTransition(t *testing.T) {
	m := MustNew[state, event]("off", table())
	var seen []string
	m.Observe(func(from, to state, ev event) { seen = append(seen, string(from)+">"+string(to)) })

	_, _ = m.Fire(context.Background(), "on")
	_, _ = m.Fire(context.Background(), "off")
	_, _ = m.Fire(context.Background(), "off")

	require.Equal(t, []string{"off>lit", "lit>off"}, seen)
}
