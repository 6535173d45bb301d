// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFraming(t *testing.T) {
	c := DefaultCatalog()
	ev := Event{
		Code: ServerStopped,
		Time: time.Unix(1700000000, 0),
		Args: Args{ArgServerName: "survival", ArgExitCode: 143, ArgForced: true},
	}
	raw, err := c.Encode(ev)
	require.NoError(t, err)
	assert.Equal(t, "01104\x1c00\x1e1700000000\x1d01\x1esurvival\x1d02\x1e143\x1d03\x1et", raw)
}

func TestDecodeRestoresTypedArguments(t *testing.T) {
	c := DefaultCatalog()
	raw := "01104\x1c00\x1e1700000000\x1d01\x1esurvival\x1d02\x1e1\x1d03\x1ef"
	ev, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "server.stopped", ev.Name)
	assert.Equal(t, "survival", ev.ServerName())
	assert.Equal(t, int64(1), ev.Int(ArgExitCode))
	assert.False(t, ev.Bool(ArgForced))
	assert.Equal(t, int64(1700000000), ev.Time.Unix())
}

func TestEncodeCarriesCorrelationAndJSONResult(t *testing.T) {
	c := DefaultCatalog()
	ev := Event{
		Code:        VersionsEngine.Reply(),
		Time:        time.Unix(10, 0),
		Correlation: "abc",
		Args:        Args{ArgResult: []string{"1.20.1", "1.19.4"}},
	}
	raw, err := c.Encode(ev)
	require.NoError(t, err)
	assert.Equal(t, "10401\x1c00\x1e10\x1d01\x1e[\"1.20.1\",\"1.19.4\"]\x1dff\x1eabc", raw)

	back, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc", back.Correlation)
	assert.Equal(t, []any{"1.20.1", "1.19.4"}, back.Result())
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	c := DefaultCatalog()
	for _, raw := range []string{
		"",
		"zzzzz\x1c",
		"0ffff\x1c",
		"01104\x1c01\x1ea",
		"01104\x1c01\x1ea\x1d02\x1enot-int\x1d03\x1et",
		"01104\x1c01\x1ea\x1d02\x1e1\x1d03\x1eyes",
		"01104\x1c01\x1ea\x1d02\x1e1\x1d03\x1et\x1d09\x1ex",
	} {
		_, err := c.Decode(raw)
		assert.ErrorIs(t, err, ErrSchema, "input %q", raw)
	}
}

func TestNewCatalogRejectsBadTables(t *testing.T) {
	_, err := NewCatalog(
		Spec{Code: 0x10, Name: "a"},
		Spec{Code: 0x10, Name: "b"},
	)
	require.Error(t, err)

	_, err = NewCatalog(Spec{Code: 0x10, Name: "a", Kind: KindRequest})
	require.Error(t, err)

	_, err = NewCatalog(Spec{Code: 0x10, Name: "a", Args: []ArgSpec{{ID: 0, Name: "x", Kind: ArgString}}})
	require.Error(t, err)
}

func TestDefaultCatalogShape(t *testing.T) {
	c := DefaultCatalog()
	for _, s := range c.Specs() {
		if s.Code == ServerList || s.Code == VersionsEngine || s.Code == VersionsLoader {
			continue
		}
		_, ok := s.arg(ArgServerName)
		assert.True(t, ok, "%s must carry the workload name", s.Name)
	}
	spec, ok := c.ByName("server.start")
	require.True(t, ok)
	assert.Equal(t, ServerStart, spec.Code)
	reply, ok := c.Lookup(ServerStart.Reply())
	require.True(t, ok)
	assert.Equal(t, KindReply, reply.Kind)
	_, ok = c.Lookup(ServerStarted.Reply())
	assert.False(t, ok)
}
