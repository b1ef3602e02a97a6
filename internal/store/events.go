package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"binderd/internal/engine"
)

// DefaultEventLimit bounds RecentEvents when no limit is given.
const DefaultEventLimit = 100

// eventQueueSize bounds events waiting for the writer; Emit drops beyond it.
const eventQueueSize = 256

var _ engine.Sink = (*Store)(nil)

// AppendEvent records an engine event. A zero Time is stamped with the
// store clock.
func (s *Store) AppendEvent(ev engine.Event) error {
	ts := ev.Time.UnixNano()
	if ev.Time.IsZero() {
		ts = s.stamp()
	}

	var meta sql.NullString
	if len(ev.Meta) > 0 {
		data, err := json.Marshal(ev.Meta)
		if err != nil {
			return fmt.Errorf("encode event meta: %w", err)
		}
		meta = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO events (timestamp_ns, type, entity, profile_id, profile_name, meta)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts, string(ev.Type), ev.Entity, ev.ProfileID, ev.ProfileName, meta,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Emit implements engine.Sink. It queues ev for a background writer and
// never waits on the database. Events are dropped when the queue is full or
// the store is closed. Write failures are logged.
func (s *Store) Emit(ev engine.Event) {
	if ev.Time.IsZero() {
		ev.Time = fromStamp(s.stamp())
	}

	s.eventMu.RLock()
	defer s.eventMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.eventChan <- ev:
	default:
		s.log.Debug("event log queue full, dropping event", "type", string(ev.Type))
	}
}

func (s *Store) writeEvents() {
	defer close(s.eventsDone)
	for ev := range s.eventChan {
		if err := s.AppendEvent(ev); err != nil {
			s.log.Warn("event log write failed", "type", string(ev.Type), "error", err)
		}
	}
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (s *Store) RecentEvents(limit int) ([]engine.Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	rows, err := s.db.Query(`
		SELECT timestamp_ns, type, entity, profile_id, profile_name, meta
		FROM events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []engine.Event
	for rows.Next() {
		var (
			ev   engine.Event
			ts   int64
			typ  string
			meta sql.NullString
		)
		if err := rows.Scan(&ts, &typ, &ev.Entity, &ev.ProfileID, &ev.ProfileName, &meta); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Time = fromStamp(ts)
		ev.Type = engine.EventType(typ)
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &ev.Meta); err != nil {
				return nil, fmt.Errorf("decode event meta: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// PruneEvents keeps the newest keep events and deletes the rest.
func (s *Store) PruneEvents(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.Exec(`
		DELETE FROM events WHERE id NOT IN (
			SELECT id FROM events ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}
