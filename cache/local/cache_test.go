package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	c := NewCache(Config{GCInterval: time.Minute})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSessionKeyRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "session:abc", "42", 0))
	v, err := c.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	_, err = c.Get(ctx, "session:missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "refresh:tok", "1", 10*time.Millisecond))
	ok, _ := c.Exists(ctx, "refresh:tok")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, err := c.Get(ctx, "refresh:tok")
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err = c.Exists(ctx, "refresh:tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepRemovesExpired(t *testing.T) {
	c := NewCache(Config{GCInterval: 5 * time.Millisecond})
	defer c.Close()
	require.NoError(t, c.Set(context.Background(), "k", "v", time.Millisecond))

	assert.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return len(c.items) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestDel_StringsAndHashes(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.HSet(ctx, "h", map[string]string{"f": "v"}))

	require.NoError(t, c.Del(ctx, "a", "h", "never-set"))
	for _, k := range []string{"a", "h"} {
		ok, err := c.Exists(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
}

func TestHash(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "stats:graph", map[string]string{"users": "3", "pending_requests": "1"}))
	require.NoError(t, c.HSet(ctx, "stats:graph", map[string]string{"pending_requests": "2"}))

	all, err := c.HGetAll(ctx, "stats:graph")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"users": "3", "pending_requests": "2"}, all)

	// The result is a copy.
	all["users"] = "999"
	again, _ := c.HGetAll(ctx, "stats:graph")
	assert.Equal(t, "3", again["users"])

	empty, err := c.HGetAll(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestKeySpaceIsShared(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "k", map[string]string{"f": "v"}))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound, "Get on a hash")

	require.NoError(t, c.Set(ctx, "k", "plain", 0))
	h, err := c.HGetAll(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, h)

	require.NoError(t, c.HSet(ctx, "k", map[string]string{"g": "w"}))
	h, _ = c.HGetAll(ctx, "k")
	assert.Equal(t, map[string]string{"g": "w"}, h)
}

func TestClose_Idempotent(t *testing.T) {
	c := NewCache(Config{})
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
