package principal

import (
	"container/list"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// discoveryCache memoizes discovery outcomes per requirement set, bounded by
// TTL and LRU capacity. Concurrent misses for the same key are collapsed to
// one upstream query through singleflight.
type discoveryCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front is most recently used

	sf singleflight.Group
}

type cacheEntry struct {
	key       string
	value     *discoveryOutcome
	expiresAt time.Time
}

func newDiscoveryCache(ttl time.Duration, capacity int) *discoveryCache {
	return &discoveryCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// cacheKey canonicalizes a requirement set: order does not matter.
func cacheKey(requirements []string) string {
	sorted := append([]string(nil), requirements...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x1f")
}

func (c *discoveryCache) get(key string) (*discoveryOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.value, true
}

func (c *discoveryCache) put(key string, value *discoveryOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.entries[key] = el

	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *discoveryCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
}

func (c *discoveryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// getOrFetch returns the cached outcome or runs fetch once for all
// concurrent callers of the same key. The bool reports a cache hit.
func (c *discoveryCache) getOrFetch(key string, fetch func() (*discoveryOutcome, error)) (*discoveryOutcome, bool, error) {
	if out, ok := c.get(key); ok {
		return out, true, nil
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// A racing caller may have populated the entry already.
		if out, ok := c.get(key); ok {
			return out, nil
		}
		out, err := fetch()
		if err != nil {
			return nil, err
		}
		c.put(key, out)
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*discoveryOutcome), false, nil
}
