package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stringKey(k string) string { return k }

func TestLoaderCache_Get(t *testing.T) {
	t.Run("loads on miss and caches", func(t *testing.T) {
		c := NewLoaderCache[string, int](10, 0, stringKey)

		loads := 0
		load := func(_ context.Context, _ string) (int, error) {
			loads++

			return 42, nil
		}

		v, err := c.Get(context.Background(), "a", load)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, 1, loads)

		v, err = c.Get(context.Background(), "a", load)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, 1, loads, "second get should not reload")
	})

	t.Run("load error is returned and not cached", func(t *testing.T) {
		c := NewLoaderCache[string, int](10, 0, stringKey)

		wantErr := errors.New("boom")
		calls := 0
		load := func(_ context.Context, _ string) (int, error) {
			calls++

			return 0, wantErr
		}

		_, err := c.Get(context.Background(), "a", load)
		assert.ErrorIs(t, err, wantErr)

		_, err = c.Get(context.Background(), "a", load)
		assert.ErrorIs(t, err, wantErr)
		assert.Equal(t, 2, calls, "errors must not be cached")
	})

	t.Run("entries expire after TTL", func(t *testing.T) {
		c := NewLoaderCache[string, int](10, 20*time.Millisecond, stringKey)

		loads := 0
		load := func(_ context.Context, _ string) (int, error) {
			loads++

			return loads, nil
		}

		v, err := c.Get(context.Background(), "a", load)
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		time.Sleep(50 * time.Millisecond)

		v, err = c.Get(context.Background(), "a", load)
		require.NoError(t, err)
		assert.Equal(t, 2, v, "expired entry should reload")
	})

	t.Run("concurrent misses coalesce to one load", func(t *testing.T) {
		c := NewLoaderCache[string, int](10, 0, stringKey)

		var (
			mu    sync.Mutex
			loads int
		)

		load := func(_ context.Context, _ string) (int, error) {
			mu.Lock()
			loads++
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)

			return 7, nil
		}

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				v, err := c.Get(context.Background(), "a", load)
				assert.NoError(t, err)
				assert.Equal(t, 7, v)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, loads)
	})
}

func TestLoaderCache_GetWithStats(t *testing.T) {
	c := NewLoaderCache[string, string](10, 0, stringKey)

	load := func(_ context.Context, k string) (string, error) { return k + "!", nil }

	v, hit, err := c.GetWithStats(context.Background(), "x", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "x!", v)

	v, hit, err = c.GetWithStats(context.Background(), "x", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "x!", v)
}

func TestLoaderCache_Invalidate(t *testing.T) {
	c := NewLoaderCache[string, int](10, 0, stringKey)

	loads := 0
	load := func(_ context.Context, _ string) (int, error) {
		loads++

		return loads, nil
	}

	_, err := c.Get(context.Background(), "a", load)
	require.NoError(t, err)

	c.Invalidate("a")

	v, err := c.Get(context.Background(), "a", load)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	c.Put("b", 99)
	assert.Equal(t, 2, c.Len())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())

	_, ok := c.Peek("b")
	assert.False(t, ok)
}
