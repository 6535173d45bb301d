// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0)
	defer cache.Close()

	cache.Set(ctx, "key1", []byte("value1"), 5*time.Minute)

	val, ok := cache.Get(ctx, "key1")
	require.True(t, ok, "expected to find key1")
	assert.Equal(t, []byte("value1"), val)

	_, ok = cache.Get(ctx, "nonexistent")
	assert.False(t, ok)
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0)
	defer cache.Close()

	buf := []byte("abc")
	cache.Set(ctx, "k", buf, time.Minute)
	buf[0] = 'x'
	got, _ := cache.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
	got[1] = 'y'
	again, _ := cache.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryCache_Expiration(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0)
	defer cache.Close()

	cache.Set(ctx, "shortlived", []byte("v"), 50*time.Millisecond)
	_, ok := cache.Get(ctx, "shortlived")
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	_, ok = cache.Get(ctx, "shortlived")
	assert.False(t, ok, "expected key to be expired")
}

func TestMemoryCache_DeleteAndStats(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0)
	defer cache.Close()

	cache.Set(ctx, "a", []byte("1"), time.Minute)
	cache.Set(ctx, "b", []byte("2"), time.Minute)
	cache.Get(ctx, "a")
	cache.Get(ctx, "zzz")
	cache.Delete(ctx, "b")

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.Sets)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestMemoryCache_JanitorEvicts(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10 * time.Millisecond)
	defer cache.Close()

	cache.Set(ctx, "gone", []byte("v"), time.Millisecond)
	require.Eventually(t, func() bool {
		s := cache.Stats()
		return s.CurrentSize == 0 && s.Evictions == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryCache_CloseStopsJanitor(t *testing.T) {
	defer goleak.VerifyNone(t)
	cache := NewMemoryCache(time.Millisecond)
	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close())
}
