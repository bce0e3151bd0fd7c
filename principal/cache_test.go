package principal

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outcome(ids ...string) *discoveryOutcome {
	out := &discoveryOutcome{}
	for range ids {
		out.candidates = append(out.candidates, rankedCandidate{score: 1})
	}
	return out
}

func TestCacheKey_OrderInsensitive(t *testing.T) {
	a := cacheKey([]string{"weather", "location:São Paulo"})
	b := cacheKey([]string{"location:São Paulo", "weather"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, cacheKey([]string{"weather"}))
}

func TestCache_TTLExpiry(t *testing.T) {
	c := newDiscoveryCache(20*time.Millisecond, 8)

	c.put("k", outcome("a"))
	_, ok := c.get("k")
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}

func TestCache_LRUEviction(t *testing.T) {
	c := newDiscoveryCache(time.Minute, 2)

	c.put("a", outcome())
	c.put("b", outcome())
	_, ok := c.get("a") // refresh a
	require.True(t, ok)

	c.put("c", outcome()) // evicts b, the least recently used

	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("b")
	assert.False(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestCache_Invalidate(t *testing.T) {
	c := newDiscoveryCache(time.Minute, 8)
	c.put("k", outcome())
	c.invalidate("k")
	_, ok := c.get("k")
	assert.False(t, ok)
	c.invalidate("missing") // no-op
}

func TestCache_GetOrFetch(t *testing.T) {
	c := newDiscoveryCache(time.Minute, 8)

	var fetches int
	out, hit, err := c.getOrFetch("k", func() (*discoveryOutcome, error) {
		fetches++
		return outcome("a"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotNil(t, out)

	_, hit, err = c.getOrFetch("k", func() (*discoveryOutcome, error) {
		fetches++
		return outcome("a"), nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, fetches)
}

func TestCache_FetchErrorNotCached(t *testing.T) {
	c := newDiscoveryCache(time.Minute, 8)

	boom := errors.New("boom")
	_, _, err := c.getOrFetch("k", func() (*discoveryOutcome, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	// Next call fetches again.
	var fetched bool
	_, hit, err := c.getOrFetch("k", func() (*discoveryOutcome, error) {
		fetched = true
		return outcome(), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, fetched)
}

func TestCache_SingleflightCollapsesConcurrentMisses(t *testing.T) {
	c := newDiscoveryCache(time.Minute, 8)

	var fetches int64
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.getOrFetch("k", func() (*discoveryOutcome, error) {
				atomic.AddInt64(&fetches, 1)
				<-release
				return outcome("a"), nil
			})
			assert.NoError(t, err)
		}()
	}

	time.Sleep(20 * time.Millisecond) // let the goroutines pile up
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&fetches))
}
