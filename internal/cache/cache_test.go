// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemory_GetSet(t *testing.T) {
	c := NewMemory(0)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", []byte("v"), time.Minute)
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", string(v))

	st := c.Stats()
	assert.EqualValues(t, 1, st.Hits)
	assert.EqualValues(t, 1, st.Misses)
	assert.EqualValues(t, 1, st.Sets)
	assert.Equal(t, 1, st.Size)
}

func TestMemory_Expiration(t *testing.T) {
	c := NewMemory(0)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Second)
	now = now.Add(2 * time.Second)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.deleteExpired())
	assert.Zero(t, c.Stats().Size)
	assert.EqualValues(t, 1, c.Stats().Evictions)
}

func TestMemory_Delete(t *testing.T) {
	c := NewMemory(0)
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_JanitorStopsOnClose(t *testing.T) {
	before := goleak.IgnoreCurrent()
	c := NewMemory(time.Millisecond)
	c.Set(context.Background(), "k", []byte("v"), time.Nanosecond)

	require.Eventually(t, func() bool { return c.Stats().Size == 0 }, time.Second, time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	goleak.VerifyNone(t, before)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	c := NewMemory(time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Set(ctx, "k", []byte("v"), time.Millisecond)
				c.Get(ctx, "k")
			}
		}()
	}
	wg.Wait()
}
