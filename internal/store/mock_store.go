// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/dock-gateway/internal/engine"
)

// ErrStoreClosed is returned by MockStore after Close.
var ErrStoreClosed = errors.New("store closed")

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	events map[string]*StoredEvent // keyed by engine.Event.Key
	closed bool

	// SaveErr, when set, is returned by SaveEvent.
	SaveErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		events: make(map[string]*StoredEvent),
	}
}

// SaveEvent stores ev unless its key is already present.
func (m *MockStore) SaveEvent(ctx context.Context, ev engine.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if m.SaveErr != nil {
		return m.SaveErr
	}

	key := ev.Key()
	if _, exists := m.events[key]; exists {
		return nil
	}
	m.events[key] = &StoredEvent{
		ID:         uuid.New().String(),
		Event:      ev,
		ReceivedAt: time.Now().UTC(),
	}
	return nil
}

// ListEvents returns the most recent matching events, oldest first.
func (m *MockStore) ListEvents(ctx context.Context, params ListEventsParams) ([]StoredEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var matched []StoredEvent
	for _, ev := range m.events {
		if params.Since != nil && ev.Event.Timestamp().Before(*params.Since) {
			continue
		}
		if params.Type != "" && ev.Event.Type != params.Type {
			continue
		}
		matched = append(matched, *ev)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Event.Timestamp().Before(matched[j].Event.Timestamp())
	})

	if limit := params.normalizedLimit(); len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// LatestEvents returns every event sharing the newest stored timestamp.
func (m *MockStore) LatestEvents(ctx context.Context) ([]engine.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest time.Time
	for _, ev := range m.events {
		if ts := ev.Event.Timestamp(); ts.After(latest) {
			latest = ts
		}
	}

	var events []engine.Event
	for _, ev := range m.events {
		if ev.Event.Timestamp().Equal(latest) {
			events = append(events, ev.Event)
		}
	}
	return events, nil
}

// PruneEvents deletes events older than before.
func (m *MockStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, ev := range m.events {
		if ev.Event.Timestamp().Before(before) {
			delete(m.events, key)
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored events.
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
