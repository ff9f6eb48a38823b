// ABOUTME: Tests for the idempotency-key cache.
// ABOUTME: Validates duplicate detection, TTL expiry, eviction, and concurrency.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SeenAndMark(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.SeenAndMark("key-1"), "first sighting is not a duplicate")
	assert.True(t, cache.SeenAndMark("key-1"), "second sighting is a duplicate")
	assert.False(t, cache.SeenAndMark("key-2"), "distinct keys are independent")
}

func TestCache_Seen(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Seen("key-1"))
	cache.SeenAndMark("key-1")
	assert.True(t, cache.Seen("key-1"))
}

func TestCache_TTLExpiry(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	assert.False(t, cache.SeenAndMark("key-1"))
	time.Sleep(20 * time.Millisecond)

	// Expired keys are no longer duplicates.
	assert.False(t, cache.Seen("key-1"))
	assert.False(t, cache.SeenAndMark("key-1"))
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	cache.SeenAndMark("key-1")
	cache.SeenAndMark("key-2")
	cache.SeenAndMark("key-3")
	cache.SeenAndMark("key-4")

	assert.Equal(t, 3, cache.Len())
	assert.False(t, cache.Seen("key-1"), "oldest key evicted")
	assert.True(t, cache.Seen("key-4"))
}

func TestCache_RemarkRefreshesEvictionOrder(t *testing.T) {
	cache := New(5*time.Minute, 2)
	defer cache.Close()

	cache.SeenAndMark("key-1")
	cache.SeenAndMark("key-2")
	cache.SeenAndMark("key-1") // duplicate, but moves key-1 to the back
	cache.SeenAndMark("key-3")

	assert.True(t, cache.Seen("key-1"))
	assert.False(t, cache.Seen("key-2"))
}

func TestCache_Sweep(t *testing.T) {
	cache := New(5*time.Millisecond, 100)
	defer cache.Close()

	cache.SeenAndMark("key-1")
	time.Sleep(10 * time.Millisecond)
	cache.sweep()

	assert.Equal(t, 0, cache.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := New(5*time.Minute, 1000)
	defer cache.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				cache.SeenAndMark(fmt.Sprintf("key-%d-%d", g, i))
				cache.Seen(fmt.Sprintf("key-%d-%d", g, i))
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 800, cache.Len())
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	cache := New(5*time.Minute, 100)
	cache.Close()
	cache.Close()
}
