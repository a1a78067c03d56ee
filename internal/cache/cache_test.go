package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	t.Parallel()

	c := New[string](time.Minute)
	c.Set("models", "payload")

	value, ok := c.Get("models")
	require.True(t, ok)
	require.Equal(t, "payload", value)

	_, ok = c.Get("missing")
	require.False(t, ok)
}

func TestCacheExpiresAtRead(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := New[int](time.Minute)
	c.now = func() time.Time { return now }

	c.Set("key", 42)
	start := now

	now = start.Add(time.Minute - time.Nanosecond)
	value, ok := c.Get("key")
	require.True(t, ok)
	require.Equal(t, 42, value)

	// Exactly at the ttl boundary the entry is already gone.
	now = start.Add(time.Minute)
	_, ok = c.Get("key")
	require.False(t, ok)
	require.Zero(t, c.Len())
}

func TestCacheDeleteAndClear(t *testing.T) {
	t.Parallel()

	c := New[string](time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	c.Delete("a")
	_, ok := c.Get("a")
	require.False(t, ok)
	require.Equal(t, 1, c.Len())

	c.Clear()
	require.Zero(t, c.Len())
}
