// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := newRedisCache(client, "test:", zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedisCache_SetGet(t *testing.T) {
	ctx := context.Background()
	mr, cache := setupMiniRedis(t)

	cache.Set(ctx, "engines", []byte(`["1.20.1"]`), 5*time.Minute)

	val, found := cache.Get(ctx, "engines")
	require.True(t, found)
	assert.Equal(t, `["1.20.1"]`, string(val))
	assert.True(t, mr.Exists("test:engines"), "keys are namespaced")

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestRedisCache_GetMissing(t *testing.T) {
	_, cache := setupMiniRedis(t)
	val, found := cache.Get(context.Background(), "nonexistent")
	assert.False(t, found)
	assert.Nil(t, val)
	assert.Equal(t, int64(1), cache.Stats().Misses)
}

func TestRedisCache_Expiration(t *testing.T) {
	ctx := context.Background()
	mr, cache := setupMiniRedis(t)

	cache.Set(ctx, "k", []byte("v"), time.Minute)
	mr.FastForward(2 * time.Minute)
	_, found := cache.Get(ctx, "k")
	assert.False(t, found)
}

func TestRedisCache_Delete(t *testing.T) {
	ctx := context.Background()
	_, cache := setupMiniRedis(t)

	cache.Set(ctx, "k", []byte("v"), time.Minute)
	cache.Delete(ctx, "k")
	_, found := cache.Get(ctx, "k")
	assert.False(t, found)
}

func TestRedisCache_ServerDownIsAMiss(t *testing.T) {
	ctx := context.Background()
	mr, cache := setupMiniRedis(t)
	cache.Set(ctx, "k", []byte("v"), time.Minute)
	mr.Close()

	_, found := cache.Get(ctx, "k")
	assert.False(t, found)
	assert.Error(t, cache.HealthCheck(ctx))
}

func TestNewRedisCache_PingFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(context.Background(), RedisConfig{Addr: addr}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis connection failed")
}

func TestNewRedisCache_Connects(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(context.Background(), RedisConfig{Addr: mr.Addr(), Prefix: "p:"}, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.HealthCheck(context.Background()))
}
