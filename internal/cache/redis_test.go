// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedis(client, "test:")
}

func TestRedis_SetGet(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte(`{"title":"x"}`), time.Minute)
	assert.True(t, mr.Exists("test:k"))

	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"x"}`, string(v))
	assert.EqualValues(t, 1, c.Stats().Hits)
}

func TestRedis_MissAndTTL(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "k", []byte("v"), time.Second)
	mr.FastForward(2 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.EqualValues(t, 2, c.Stats().Misses)
}

func TestRedis_Delete(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")
	assert.False(t, mr.Exists("test:k"))
}

func TestRedis_BackendDownIsMiss(t *testing.T) {
	mr, c := setupMiniRedis(t)
	mr.Close()

	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}
