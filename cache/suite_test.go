package cache

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	Key   string `msgpack:"key"`
	Value int    `msgpack:"value"`
}

func (i testItem) ID() string { return i.Key }

func item(key string, value int) testItem {
	return testItem{Key: key, Value: value}
}

func newTestRegistry() *Registry[testItem] {
	reg := NewRegistry[testItem]()
	MustRegister[testItem, testItem](reg, "item")
	return reg
}

func newMockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return clk
}

func keysOf(items []testItem) []string {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, it.Key)
	}
	sort.Strings(keys)
	return keys
}

func listKeys(t *testing.T, c Cache[testItem]) []string {
	t.Helper()
	it, err := c.Enumerate(context.Background())
	require.NoError(t, err)
	items, err := ToList(it)
	require.NoError(t, err)
	return keysOf(items)
}

type cacheFactory func(t *testing.T, opts ...Option) Cache[testItem]

// runCacheSuite checks the behaviour every backend must share.
func runCacheSuite(t *testing.T, newCache cacheFactory) {
	ctx := context.Background()

	t.Run("submit get has", func(t *testing.T) {
		c := newCache(t)
		defer c.Close()

		val, found, err := c.Get(ctx, "a")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, testItem{}, val)

		ok, err := c.Has(ctx, "a")
		assert.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.Submit(ctx, item("a", 1)))
		val, found, err = c.Get(ctx, "a")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, item("a", 1), val)

		ok, err = c.Has(ctx, "a")
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("last writer wins", func(t *testing.T) {
		c := newCache(t)
		defer c.Close()

		require.NoError(t, c.Submit(ctx, item("a", 1)))
		require.NoError(t, c.Submit(ctx, item("a", 2)))
		require.NoError(t, c.Submit(ctx, item("b", 3)))

		val, found, err := c.Get(ctx, "a")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 2, val.Value)
		assert.Equal(t, []string{"a", "b"}, listKeys(t, c))
	})

	t.Run("remove", func(t *testing.T) {
		c := newCache(t)
		defer c.Close()

		require.NoError(t, c.Submit(ctx, item("a", 1)))
		assert.NoError(t, c.Remove(ctx, "a"))
		ok, err := c.Has(ctx, "a")
		assert.NoError(t, err)
		assert.False(t, ok)

		assert.NoError(t, c.Remove(ctx, "missing"))
	})

	t.Run("limit evicts first submitted without reads", func(t *testing.T) {
		clk := newMockClock()
		c := newCache(t, WithClock(clk), WithLimit(4))
		defer c.Close()

		for _, key := range []string{"1", "2", "3", "4", "5"} {
			require.NoError(t, c.Submit(ctx, item(key, 0)))
			clk.Add(time.Millisecond)
		}
		assert.Equal(t, []string{"2", "3", "4", "5"}, listKeys(t, c))
	})

	t.Run("limit evicts least recently read", func(t *testing.T) {
		clk := newMockClock()
		c := newCache(t, WithClock(clk), WithLimit(3))
		defer c.Close()

		for _, key := range []string{"1", "2", "3"} {
			require.NoError(t, c.Submit(ctx, item(key, 0)))
			clk.Add(time.Millisecond)
		}
		_, found, err := c.Get(ctx, "1")
		require.NoError(t, err)
		require.True(t, found)
		clk.Add(time.Millisecond)

		require.NoError(t, c.Submit(ctx, item("4", 0)))
		assert.Equal(t, []string{"1", "3", "4"}, listKeys(t, c))
	})

	t.Run("overwrite at limit does not evict", func(t *testing.T) {
		clk := newMockClock()
		c := newCache(t, WithClock(clk), WithLimit(2))
		defer c.Close()

		require.NoError(t, c.Submit(ctx, item("1", 0)))
		clk.Add(time.Millisecond)
		require.NoError(t, c.Submit(ctx, item("2", 0)))
		clk.Add(time.Millisecond)
		require.NoError(t, c.Submit(ctx, item("1", 1)))
		assert.Equal(t, []string{"1", "2"}, listKeys(t, c))
	})

	t.Run("enumerate refreshes recency with limit", func(t *testing.T) {
		clk := newMockClock()
		c := newCache(t, WithClock(clk), WithLimit(2))
		defer c.Close()

		require.NoError(t, c.Submit(ctx, item("1", 0)))
		clk.Add(time.Millisecond)
		require.NoError(t, c.Submit(ctx, item("2", 0)))
		clk.Add(time.Millisecond)

		it, err := c.Enumerate(ctx)
		require.NoError(t, err)
		require.True(t, it.HasNext())
		read, err := it.Next()
		require.NoError(t, err)
		require.NoError(t, it.Close())
		clk.Add(time.Millisecond)

		require.NoError(t, c.Submit(ctx, item("3", 0)))
		keys := listKeys(t, c)
		assert.Len(t, keys, 2)
		assert.Contains(t, keys, read.Key)
		assert.Contains(t, keys, "3")
	})

	t.Run("expired entries are hidden without explicit sweep", func(t *testing.T) {
		clk := newMockClock()
		c := newCache(t, WithClock(clk), WithExpireAfter(time.Second))
		defer c.Close()

		require.NoError(t, c.Submit(ctx, item("a", 1)))
		clk.Add(1100 * time.Millisecond)

		_, found, err := c.Get(ctx, "a")
		assert.NoError(t, err)
		assert.False(t, found)
		ok, err := c.Has(ctx, "a")
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, listKeys(t, c))
	})

	t.Run("expiry is exact at the boundary", func(t *testing.T) {
		clk := newMockClock()
		c := newCache(t, WithClock(clk), WithExpireAfter(time.Second))
		defer c.Close()

		require.NoError(t, c.Submit(ctx, item("a", 1)))
		clk.Add(999 * time.Millisecond)
		ok, err := c.Has(ctx, "a")
		assert.NoError(t, err)
		assert.True(t, ok)

		clk.Add(time.Millisecond)
		ok, err = c.Has(ctx, "a")
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("reads do not extend expiry without limit", func(t *testing.T) {
		clk := newMockClock()
		c := newCache(t, WithClock(clk), WithExpireAfter(time.Second))
		defer c.Close()

		require.NoError(t, c.Submit(ctx, item("a", 1)))
		clk.Add(600 * time.Millisecond)
		_, found, err := c.Get(ctx, "a")
		require.NoError(t, err)
		require.True(t, found)
		clk.Add(600 * time.Millisecond)

		_, found, err = c.Get(ctx, "a")
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("reads extend expiry with limit", func(t *testing.T) {
		clk := newMockClock()
		c := newCache(t, WithClock(clk), WithExpireAfter(time.Second), WithLimit(10))
		defer c.Close()

		require.NoError(t, c.Submit(ctx, item("a", 1)))
		clk.Add(600 * time.Millisecond)
		_, found, err := c.Get(ctx, "a")
		require.NoError(t, err)
		require.True(t, found)
		clk.Add(600 * time.Millisecond)

		_, found, err = c.Get(ctx, "a")
		assert.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("resubmit refreshes expiry", func(t *testing.T) {
		clk := newMockClock()
		c := newCache(t, WithClock(clk), WithExpireAfter(time.Second))
		defer c.Close()

		require.NoError(t, c.Submit(ctx, item("a", 1)))
		clk.Add(800 * time.Millisecond)
		require.NoError(t, c.Submit(ctx, item("a", 2)))
		clk.Add(800 * time.Millisecond)

		val, found, err := c.Get(ctx, "a")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 2, val.Value)
	})

	t.Run("evict expired items", func(t *testing.T) {
		clk := newMockClock()
		c := newCache(t, WithClock(clk), WithExpireAfter(time.Second))
		defer c.Close()

		require.NoError(t, c.Submit(ctx, item("old", 1)))
		clk.Add(700 * time.Millisecond)
		require.NoError(t, c.Submit(ctx, item("new", 2)))
		clk.Add(700 * time.Millisecond)

		assert.NoError(t, c.EvictExpiredItems(ctx))
		assert.Equal(t, []string{"new"}, listKeys(t, c))
	})

	t.Run("evict expired items without expiry is a no-op", func(t *testing.T) {
		c := newCache(t)
		defer c.Close()

		require.NoError(t, c.Submit(ctx, item("a", 1)))
		assert.NoError(t, c.EvictExpiredItems(ctx))
		assert.Equal(t, []string{"a"}, listKeys(t, c))
	})

	t.Run("get or provide", func(t *testing.T) {
		c := newCache(t)
		defer c.Close()

		calls := 0
		provider := func(_ context.Context, id string) (testItem, bool, error) {
			calls++
			return item(id, 7), true, nil
		}
		val, found, err := GetOrProvide(ctx, c, "a", provider)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, item("a", 7), val)
		assert.Equal(t, 1, calls)

		val, found, err = GetOrProvide(ctx, c, "a", provider)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, item("a", 7), val)
		assert.Equal(t, 1, calls)
	})

	t.Run("get or provide with absent provider", func(t *testing.T) {
		c := newCache(t)
		defer c.Close()

		_, found, err := GetOrProvide(ctx, c, "a", func(context.Context, string) (testItem, bool, error) {
			return testItem{}, false, nil
		})
		assert.NoError(t, err)
		assert.False(t, found)
		ok, err := c.Has(ctx, "a")
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("closed", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Close())
		assert.NoError(t, c.Close())

		_, _, err := c.Get(ctx, "a")
		assert.True(t, errors.Is(err, ErrClosed))
		assert.True(t, errors.Is(c.Submit(ctx, item("a", 1)), ErrClosed))
	})

	t.Run("concurrent submits respect limit", func(t *testing.T) {
		c := newCache(t, WithLimit(5))
		defer c.Close()

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					key := string(rune('a' + (g*7+i)%10))
					assert.NoError(t, c.Submit(ctx, item(key, i)))
					_, _, err := c.Get(ctx, key)
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		keys := listKeys(t, c)
		assert.LessOrEqual(t, len(keys), 5)
		seen := map[string]bool{}
		for _, k := range keys {
			assert.False(t, seen[k], "duplicate id %s", k)
			seen[k] = true
		}
	})
}
