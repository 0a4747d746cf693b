// ABOUTME: Store interface and record types for the engine event ledger
// ABOUTME: Defines StoredEvent and query parameters shared by SQLite and mock stores

package store

import (
	"context"
	"time"

	"github.com/2389/dock-gateway/internal/engine"
)

const (
	// DefaultListLimit is used when ListEventsParams.Limit is zero.
	DefaultListLimit = 50

	// MaxListLimit caps ListEventsParams.Limit.
	MaxListLimit = 500
)

// StoredEvent is an engine event as recorded in the ledger.
type StoredEvent struct {
	ID         string
	Event      engine.Event
	ReceivedAt time.Time
}

// ListEventsParams filters a ListEvents query.
type ListEventsParams struct {
	Since *time.Time // only events at or after this instant
	Type  string     // only events of this engine type (container, image, ...)
	Limit int        // 1-500, defaults to 50
}

// normalizedLimit clamps Limit into [1, MaxListLimit].
func (p ListEventsParams) normalizedLimit() int {
	switch {
	case p.Limit <= 0:
		return DefaultListLimit
	case p.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return p.Limit
	}
}

// Store is the event ledger.
type Store interface {
	// SaveEvent records ev. Saving an event with an already stored key is a no-op.
	SaveEvent(ctx context.Context, ev engine.Event) error

	// ListEvents returns the most recent matching events, oldest first.
	ListEvents(ctx context.Context, params ListEventsParams) ([]StoredEvent, error)

	// LatestEvents returns every event sharing the newest stored timestamp,
	// oldest insert first. An empty ledger returns no events.
	LatestEvents(ctx context.Context) ([]engine.Event, error)

	// PruneEvents deletes events older than before and returns how many were removed.
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
