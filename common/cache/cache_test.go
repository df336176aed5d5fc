package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enabledCache(maxSize int) *ResultCache {
	return New(Config{Enabled: true, DefaultTTL: time.Minute, MaxSize: maxSize})
}

func TestKey_Deterministic(t *testing.T) {
	k1, err := Key("FilterData", map[string]any{"a": 1, "b": "x"})
	require.NoError(t, err)
	k2, err := Key("FilterData", map[string]any{"b": "x", "a": 1})
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "map key order must not change the key")

	k3, err := Key("TransformData", map[string]any{"a": 1, "b": "x"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3, "kind is part of the key")
}

func TestGetSet_RoundTrip(t *testing.T) {
	c := enabledCache(10)

	c.Set("k1", "FilterData", []any{"a", "b"}, time.Minute)
	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, got)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, 1, stats.Size)
}

func TestGet_MissCounts(t *testing.T) {
	c := enabledCache(10)
	_, ok := c.Get("absent")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestGet_HitReturnsFreshCopy(t *testing.T) {
	c := enabledCache(10)
	c.Set("k1", "FilterData", map[string]any{"n": float64(1)}, time.Minute)

	first, ok := c.Get("k1")
	require.True(t, ok)
	first.(map[string]any)["n"] = float64(99)

	second, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, float64(1), second.(map[string]any)["n"])
}

func TestSet_ZeroTTLIsNoop(t *testing.T) {
	c := enabledCache(10)
	c.Set("k1", "FilterData", "v", 0)
	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestGet_ExpiredEntry(t *testing.T) {
	c := enabledCache(10)
	c.Set("k1", "FilterData", "v", time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok := c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestLRU_EvictsOldest(t *testing.T) {
	c := enabledCache(2)
	c.Set("k1", "A", 1, time.Minute)
	c.Set("k2", "A", 2, time.Minute)

	// Touch k1 so k2 becomes the LRU victim
	_, ok := c.Get("k1")
	require.True(t, ok)

	c.Set("k3", "A", 3, time.Minute)

	_, ok = c.Get("k2")
	assert.False(t, ok)
	_, ok = c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestInvalidate_ByKind(t *testing.T) {
	c := enabledCache(10)
	c.Set("k1", "FilterData", 1, time.Minute)
	c.Set("k2", "TransformData", 2, time.Minute)

	c.Invalidate("FilterData")
	_, ok := c.Get("k1")
	assert.False(t, ok)
	_, ok = c.Get("k2")
	assert.True(t, ok)

	c.Invalidate("")
	assert.Equal(t, 0, c.Stats().Size)
}

func TestTTLFor(t *testing.T) {
	c := New(Config{
		Enabled:    true,
		DefaultTTL: time.Minute,
		PerKindTTL: map[string]time.Duration{"ApiCall": 10 * time.Second},
	})
	assert.Equal(t, 10*time.Second, c.TTLFor("ApiCall"))
	assert.Equal(t, time.Minute, c.TTLFor("FilterData"))

	disabled := New(Config{Enabled: false, DefaultTTL: time.Minute})
	assert.Equal(t, time.Duration(0), disabled.TTLFor("ApiCall"))
}
