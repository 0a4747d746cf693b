// Package store persists relayed engine events using SQLite.
//
// # Overview
//
// The event ledger is optional. When database.path is set, every event the
// subscriber relays is also saved here so that:
//
//   - GET /api/events can return recent history to clients that just connected
//   - the subscriber can resume the engine feed from the last stored event
//     after a process restart
//
// # Interface
//
//	type Store interface {
//	    SaveEvent(ctx, ev) error
//	    ListEvents(ctx, params) ([]StoredEvent, error)
//	    LatestEvents(ctx) ([]engine.Event, error)
//	    PruneEvents(ctx, before) (int64, error)
//	    Close() error
//	}
//
// SQLiteStore is the production implementation; MockStore is an in-memory
// stand-in for tests.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (pure Go) with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//
// Use NewSQLiteStore(":memory:") for tests with real SQLite.
//
// # Duplicates
//
// Each event is stored under its engine.Event.Key. Saving the same event
// twice is a no-op, which makes replays after a reconnect harmless.
package store
