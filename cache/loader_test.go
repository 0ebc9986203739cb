package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderCoalescesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	c := newTestInMemory(t)

	var calls atomic.Int32
	release := make(chan struct{})
	loader := NewLoader(c, func(_ context.Context, id string) (testItem, bool, error) {
		calls.Add(1)
		<-release
		return item(id, 42), true, nil
	})

	var wg sync.WaitGroup
	results := make([]testItem, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, found, err := loader.Load(ctx, "a")
			assert.NoError(t, err)
			assert.True(t, found)
			results[i] = val
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, item("a", 42), r)
	}
	ok, err := c.Has(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoaderAbsentAndErrors(t *testing.T) {
	ctx := context.Background()
	c := newTestInMemory(t)
	expectedErr := errors.New("backend down")

	loader := NewLoader(c, func(_ context.Context, id string) (testItem, bool, error) {
		if id == "bad" {
			return testItem{}, false, expectedErr
		}
		return testItem{}, false, nil
	})

	_, found, err := loader.Load(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, found)

	_, _, err = loader.Load(ctx, "bad")
	assert.ErrorIs(t, err, expectedErr)
	loader.Forget("bad")
}
