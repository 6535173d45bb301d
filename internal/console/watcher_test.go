// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package console

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const oneRule = "version: 1\nrules:\n  - kind: started\n    pattern: 'ready'\n"
const twoRules = "version: 1\nrules:\n  - kind: started\n    pattern: 'ready'\n  - kind: stopping\n    pattern: 'bye'\n"

func TestRulesHolderDefaults(t *testing.T) {
	h, err := NewRulesHolder("")
	require.NoError(t, err)
	assert.Len(t, h.Rules().Rules, len(DefaultRules().Rules))
	require.NoError(t, h.Watch(context.Background()))
	require.NoError(t, h.Close())
}

func TestRulesHolderMissingFile(t *testing.T) {
	_, err := NewRulesHolder(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestRulesHolderHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(oneRule), 0o600))

	h, err := NewRulesHolder(path)
	require.NoError(t, err)
	require.Len(t, h.Rules().Rules, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Watch(ctx))
	defer func() { require.NoError(t, h.Close()) }()

	require.NoError(t, os.WriteFile(path, []byte(twoRules), 0o600))
	require.Eventually(t, func() bool { return len(h.Rules().Rules) == 2 }, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("version: ["), 0o600))
	time.Sleep(3 * reloadDebounce)
	assert.Len(t, h.Rules().Rules, 2, "invalid file keeps previous table")

	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(oneRule), 0o600))
	require.NoError(t, os.Rename(tmp, path))
	require.Eventually(t, func() bool { return len(h.Rules().Rules) == 1 }, 3*time.Second, 20*time.Millisecond)
}
