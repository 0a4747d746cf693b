// ABOUTME: Engine event ledger operations on SQLite
// ABOUTME: Save with key-based dedupe, list recent history, find resume point, prune

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/dock-gateway/internal/engine"
)

// SaveEvent persists an engine event. Duplicate keys are ignored.
func (s *SQLiteStore) SaveEvent(ctx context.Context, ev engine.Event) error {
	var attrs *string
	if len(ev.Actor.Attributes) > 0 {
		data, err := json.Marshal(ev.Actor.Attributes)
		if err != nil {
			return fmt.Errorf("encoding attributes: %w", err)
		}
		str := string(data)
		attrs = &str
	}

	query := `
		INSERT OR IGNORE INTO engine_events (
			event_id, event_key, type, action, actor_id, attributes_json, scope, time_nano, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		ev.Key(),
		ev.Type,
		ev.Action,
		ev.Actor.ID,
		attrs,
		ev.Scope,
		ev.Timestamp().UnixNano(),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent matching events, oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, params ListEventsParams) ([]StoredEvent, error) {
	var where []string
	var args []any

	if params.Since != nil {
		where = append(where, "time_nano >= ?")
		args = append(args, params.Since.UnixNano())
	}
	if params.Type != "" {
		where = append(where, "type = ?")
		args = append(args, params.Type)
	}

	query := `
		SELECT event_id, type, action, actor_id, attributes_json, scope, time_nano, received_at
		FROM engine_events
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY time_nano DESC, rowid DESC LIMIT ?"
	args = append(args, params.normalizedLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	// Query is newest-first for LIMIT; callers want chronological order
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (StoredEvent, error) {
	var (
		ev         StoredEvent
		attrs      sql.NullString
		scope      sql.NullString
		timeNano   int64
		receivedAt string
	)
	if err := rows.Scan(&ev.ID, &ev.Event.Type, &ev.Event.Action, &ev.Event.Actor.ID,
		&attrs, &scope, &timeNano, &receivedAt); err != nil {
		return StoredEvent{}, fmt.Errorf("scanning event: %w", err)
	}

	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &ev.Event.Actor.Attributes); err != nil {
			return StoredEvent{}, fmt.Errorf("decoding attributes: %w", err)
		}
	}
	ev.Event.Scope = scope.String
	ev.Event.TimeNano = timeNano
	ev.Event.Time = time.Unix(0, timeNano).Unix()

	t, err := time.Parse(time.RFC3339Nano, receivedAt)
	if err != nil {
		return StoredEvent{}, fmt.Errorf("parsing received_at: %w", err)
	}
	ev.ReceivedAt = t
	return ev, nil
}

// LatestEvents returns every event sharing the newest stored timestamp.
func (s *SQLiteStore) LatestEvents(ctx context.Context) ([]engine.Event, error) {
	query := `
		SELECT event_id, type, action, actor_id, attributes_json, scope, time_nano, received_at
		FROM engine_events
		WHERE time_nano = (SELECT MAX(time_nano) FROM engine_events)
		ORDER BY rowid
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying latest events: %w", err)
	}
	defer rows.Close()

	var events []engine.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev.Event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating latest events: %w", err)
	}
	return events, nil
}

// PruneEvents deletes events older than before.
func (s *SQLiteStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM engine_events WHERE time_nano < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned events: %w", err)
	}
	return n, nil
}
