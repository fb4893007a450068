package cache

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	_, _ = c.Get("a")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, 2, c.Size())
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestLRU_TTL(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("k", "v")

	clk.t = clk.t.Add(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clk.t = clk.t.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Size(), "expired entries are dropped on read")
}

func TestLRU_CleanExpired(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	for i := 0; i < 3; i++ {
		c.Set(strconv.Itoa(i), "x")
	}
	clk.t = clk.t.Add(30 * time.Second)
	c.Set("fresh", "y")
	clk.t = clk.t.Add(45 * time.Second)

	assert.Equal(t, 3, c.CleanExpired())
	assert.Equal(t, 1, c.Size())
}

func TestLRU_GetOrCompute(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	calls := 0
	compute := func() (string, error) {
		calls++
		return "report", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute("rev-1", compute)
		require.NoError(t, err)
		assert.Equal(t, "report", v)
	}
	assert.Equal(t, 1, calls)

	_, err := c.GetOrCompute("rev-2", func() (string, error) { return "", errors.New("boom") })
	assert.Error(t, err)
	_, ok := c.Get("rev-2")
	assert.False(t, ok, "errors are not cached")

	st := c.Stats()
	assert.Equal(t, int64(2), st.Hits)
}

func TestLRU_DeleteAndPurge(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Delete("a")
	assert.Equal(t, 1, c.Size())
	c.Purge()
	assert.Zero(t, c.Size())
}

func TestManager_CleansPeriodically(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("old", "x")
	clk.t = clk.t.Add(2 * time.Minute)

	m := NewManager(nil)
	m.Register(c)
	m.StartCleanup(context.Background(), 5*time.Millisecond)
	m.StartCleanup(context.Background(), 5*time.Millisecond)
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for c.Size() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Zero(t, c.Size())
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	m.Stop()
	assert.Zero(t, m.CleanAll())
}
