package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetSetDelete(t *testing.T) {
	c := New(time.Minute)

	c.Set("k", "v", 10*time.Second)
	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", got)

	// Overwrite is unconditional.
	c.Set("k", "v2", 10*time.Second)
	got, _ = c.Get("k")
	require.Equal(t, "v2", got)

	require.True(t, c.Delete("k"))
	require.False(t, c.Delete("k"))
	_, ok = c.Get("k")
	require.False(t, ok)
}

func TestExpiryIsLazy(t *testing.T) {
	now := time.Now()
	c := New(time.Minute, WithNow(func() time.Time { return now }))

	c.Set("k", 1, time.Second)
	_, ok := c.Get("k")
	require.True(t, ok)

	now = now.Add(1100 * time.Millisecond)
	_, ok = c.Get("k")
	require.False(t, ok, "entry past TTL must read as absent")
	require.Equal(t, 0, c.Len(), "expired entry must be evicted on read")
}

func TestDefaultTTL(t *testing.T) {
	now := time.Now()
	c := New(5*time.Second, WithNow(func() time.Time { return now }))

	c.Set("k", 1, 0)
	now = now.Add(4 * time.Second)
	_, ok := c.Get("k")
	require.True(t, ok)
	now = now.Add(2 * time.Second)
	_, ok = c.Get("k")
	require.False(t, ok)
}

func TestCleanupExpired(t *testing.T) {
	now := time.Now()
	c := New(time.Minute, WithNow(func() time.Time { return now }))

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)
	c.Set("c", 3, time.Second)
	now = now.Add(2 * time.Second)

	require.Equal(t, 2, c.CleanupExpired())
	require.Equal(t, 1, c.Len())
	_, ok := c.Get("b")
	require.True(t, ok)
}

func TestKeyStability(t *testing.T) {
	k1 := Key("ce.GetCostAndUsage", "acct-1", 30)
	k2 := Key("ce.GetCostAndUsage", "acct-1", 30)
	k3 := Key("ce.GetCostAndUsage", "acct-2", 30)
	require.Equal(t, k1, k2)
	require.NotEqual(t, k1, k3)
}

func TestMemoizeSkipsRecomputationWithinTTL(t *testing.T) {
	c := New(time.Minute)
	calls := 0
	fn := func() (int, error) {
		calls++
		return 7, nil
	}

	v, err := Memoize(c, Key("op"), time.Minute, fn)
	require.NoError(t, err)
	require.Equal(t, 7, v)
	v, err = Memoize(c, Key("op"), time.Minute, fn)
	require.NoError(t, err)
	require.Equal(t, 7, v)
	require.Equal(t, 1, calls)
}

func TestMemoizeDoesNotCacheFailures(t *testing.T) {
	c := New(time.Minute)
	calls := 0
	fn := func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 9, nil
	}

	_, err := Memoize(c, Key("op"), time.Minute, fn)
	require.Error(t, err)
	v, err := Memoize(c, Key("op"), time.Minute, fn)
	require.NoError(t, err)
	require.Equal(t, 9, v)
	require.Equal(t, 2, calls, "a failed call must not be served from cache")
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(Key("k", n, j%10), j, time.Minute)
				c.Get(Key("k", n, (j+1)%10))
				c.CleanupExpired()
			}
		}(i)
	}
	wg.Wait()
}
