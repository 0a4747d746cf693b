// ABOUTME: Tests for the dedupe window used to suppress replayed engine events.
// ABOUTME: Validates TTL expiry, size eviction, reset, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestWindow(ttl time.Duration, size int) (*Window, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	w := New(ttl, size)
	w.now = clock.now
	return w, clock
}

func TestWindow_CheckAndMark(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 10)

	assert.False(t, w.CheckAndMark("a"), "first sighting is not a duplicate")
	assert.True(t, w.CheckAndMark("a"), "second sighting is a duplicate")
	assert.False(t, w.CheckAndMark("b"))
	assert.Equal(t, 2, w.Len())
}

func TestWindow_ContainsDoesNotMark(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 10)

	assert.False(t, w.contains("a"))
	assert.False(t, w.CheckAndMark("a"))
	assert.True(t, w.contains("a"))
}

func TestWindow_Expiry(t *testing.T) {
	w, clock := newTestWindow(time.Minute, 10)

	w.CheckAndMark("old")
	clock.advance(30 * time.Second)
	w.CheckAndMark("new")

	clock.advance(31 * time.Second)
	assert.False(t, w.contains("old"), "old key expired")
	assert.True(t, w.contains("new"))
	assert.Equal(t, 1, w.Len())

	assert.False(t, w.CheckAndMark("old"), "expired key can be marked again")
}

func TestWindow_SizeEviction(t *testing.T) {
	w, _ := newTestWindow(time.Hour, 3)

	for i := 0; i < 5; i++ {
		w.CheckAndMark(fmt.Sprintf("k%d", i))
	}

	assert.Equal(t, 3, w.Len())
	assert.False(t, w.contains("k0"))
	assert.False(t, w.contains("k1"))
	assert.True(t, w.contains("k2"))
	assert.True(t, w.contains("k4"))
}

func TestWindow_ZeroSizeClampsToOne(t *testing.T) {
	w := New(time.Hour, 0)
	w.CheckAndMark("a")
	w.CheckAndMark("b")
	assert.Equal(t, 1, w.Len())
}

func TestWindow_ConcurrentCheckAndMark(t *testing.T) {
	w := New(time.Minute, 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !w.CheckAndMark("shared") {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, firsts, "exactly one goroutine sees the key first")
}
