// ABOUTME: Bounded TTL window of recently seen keys for duplicate suppression
// ABOUTME: Expiry is lazy: entries are pruned from the oldest end on each access

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key    string
	seenAt time.Time
}

// Window is a thread-safe, TTL-based, size-limited set of seen keys.
// The list is kept in seen-time order (oldest at front), which lets expiry
// and eviction both pop from the front in O(1).
type Window struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a Window that remembers keys for ttl, holding at most maxSize keys.
func New(ttl time.Duration, maxSize int) *Window {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Window{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// contains reports whether key is inside the window without marking it.
func (w *Window) contains(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.expireLocked()
	_, ok := w.index[key]
	return ok
}

// CheckAndMark atomically reports whether key was already seen and marks it
// if not. Returns true for a duplicate.
func (w *Window) CheckAndMark(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.expireLocked()
	if _, ok := w.index[key]; ok {
		return true
	}

	if w.order.Len() >= w.maxSize {
		w.removeLocked(w.order.Front())
	}
	w.index[key] = w.order.PushBack(&entry{key: key, seenAt: w.now()})
	return false
}

// Len returns the number of live keys.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.expireLocked()
	return w.order.Len()
}

// expireLocked drops entries older than ttl. Must be called with mu held.
func (w *Window) expireLocked() {
	cutoff := w.now().Add(-w.ttl)
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		e, _ := front.Value.(*entry)
		if e.seenAt.After(cutoff) {
			return
		}
		w.removeLocked(front)
	}
}

func (w *Window) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	e, _ := el.Value.(*entry)
	w.order.Remove(el)
	delete(w.index, e.key)
}
