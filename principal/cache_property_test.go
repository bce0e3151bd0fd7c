package principal

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// The cache never exceeds its capacity and always serves the value most
// recently put for a key, under any interleaving of puts and gets.
func TestProperty_Cache_CapacityAndRecency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("capacity bound and last-write-wins hold", prop.ForAll(
		func(capacity int, ops []int) bool {
			c := newDiscoveryCache(time.Minute, capacity)
			model := make(map[string]*discoveryOutcome)

			for i, op := range ops {
				key := fmt.Sprintf("k%d", op%7)
				if op%3 == 0 {
					// get: either a modeled value or a miss; a cached value
					// must match the model exactly.
					got, ok := c.get(key)
					if ok && got != model[key] {
						t.Logf("op %d: stale value for %s", i, key)
						return false
					}
				} else {
					v := outcome()
					c.put(key, v)
					model[key] = v
				}

				if c.len() > capacity {
					t.Logf("op %d: size %d exceeds capacity %d", i, c.len(), capacity)
					return false
				}
			}

			// An immediate read-back of the freshest key always hits.
			for key, v := range model {
				c.put(key, v)
				got, ok := c.get(key)
				if !ok || got != v {
					t.Logf("read-back miss for %s", key)
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
