package eventstore

import (
	"database/sql"
	"encoding/json"

	"github.com/xonecas/tronrun/internal/events"
	"github.com/xonecas/tronrun/internal/ids"
	"github.com/xonecas/tronrun/internal/runtimeerr"
)

// Append persists e atomically: read the session's current head, assign
// e.ID/ParentID/Sequence, insert the row, update the session head and
// counters, and write the FTS row — all inside one transaction protected by
// the per-session lock (§3.2 "Linear chain", "Head invariant").
func (s *Store) Append(sessionID string, e events.Event) (events.Event, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	var out events.Event
	err := withBusyRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}

		var head string
		var seq int64
		var workspaceID string
		row := tx.QueryRow(`SELECT head_event_id, event_count, workspace_id FROM sessions WHERE id = ?`, sessionID)
		if err := row.Scan(&head, &seq, &workspaceID); err != nil {
			rollback(tx)
			if err == sql.ErrNoRows {
				return runtimeerr.New(runtimeerr.KindSessionNotFound, sessionID)
			}
			return err
		}

		out = e
		out.ID = ids.New()
		out.ParentID = head
		out.Sequence = seq
		if out.WorkspaceID == "" {
			out.WorkspaceID = workspaceID
		}
		out.SessionID = sessionID

		if _, err := tx.Exec(
			`INSERT INTO events (id, session_id, workspace_id, parent_id, sequence, depth, type, timestamp, payload, checksum)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			out.ID, out.SessionID, out.WorkspaceID, out.ParentID, out.Sequence, out.Depth,
			string(out.Type), out.Timestamp.Unix(), string(out.Payload), out.Checksum,
		); err != nil {
			rollback(tx)
			return err
		}

		contrib := contribution(out)
		query := `UPDATE sessions SET
			head_event_id = ?,
			event_count = event_count + 1,
			message_count = message_count + ?,
			turn_count = turn_count + ?,
			total_input_tokens = total_input_tokens + ?,
			total_output_tokens = total_output_tokens + ?,
			total_cache_tokens = total_cache_tokens + ?,
			last_turn_input_tokens = CASE WHEN ? THEN ? ELSE last_turn_input_tokens END,
			total_cost_usd = total_cost_usd + ?,
			last_active_at = ?`
		args := []any{
			out.ID,
			contrib.messages, contrib.turns,
			contrib.inputTokens, contrib.outputTokens, contrib.cacheTokens,
			contrib.hasInputTokens, contrib.inputTokens,
			contrib.costUSD,
			out.Timestamp.Unix(),
		}
		if seq == 0 {
			query += `, root_event_id = ?`
			args = append(args, out.ID)
		}
		query += ` WHERE id = ?`
		args = append(args, sessionID)

		if _, err := tx.Exec(query, args...); err != nil {
			rollback(tx)
			return err
		}

		if ftsContent, toolName, ok := extractSearchable(out); ok {
			if _, err := tx.Exec(
				`INSERT INTO events_fts (event_id, session_id, type, content, tool_name) VALUES (?, ?, ?, ?, ?)`,
				out.ID, out.SessionID, string(out.Type), ftsContent, toolName,
			); err != nil {
				rollback(tx)
				return err
			}
		}

		return tx.Commit()
	})
	if err != nil {
		if rerr, ok := err.(*runtimeerr.Error); ok {
			return events.Event{}, rerr
		}
		return events.Event{}, runtimeerr.Wrap(runtimeerr.KindStorage, err, "append event")
	}
	return out, nil
}

// Get returns a single event by id.
func (s *Store) Get(eventID string) (events.Event, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, workspace_id, parent_id, sequence, depth, type, timestamp, payload, checksum
		 FROM events WHERE id = ?`, eventID)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return events.Event{}, runtimeerr.New(runtimeerr.KindNotFound, eventID)
	}
	if err != nil {
		return events.Event{}, runtimeerr.Wrap(runtimeerr.KindCorruptRow, err, eventID)
	}
	return e, nil
}

// List returns every event in a session ordered by sequence.
func (s *Store) List(sessionID string) ([]events.Event, error) {
	return s.listAfter(sessionID, -1)
}

// ListAfterSequence returns events with sequence > afterSeq, ordered.
func (s *Store) ListAfterSequence(sessionID string, afterSeq int64) ([]events.Event, error) {
	return s.listAfter(sessionID, afterSeq)
}

func (s *Store) listAfter(sessionID string, afterSeq int64) ([]events.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, workspace_id, parent_id, sequence, depth, type, timestamp, payload, checksum
		 FROM events WHERE session_id = ? AND sequence > ? ORDER BY sequence`, sessionID, afterSeq)
	if err != nil {
		return nil, runtimeerr.Wrap(runtimeerr.KindStorage, err, "list events")
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, runtimeerr.Wrap(runtimeerr.KindCorruptRow, err, sessionID)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (events.Event, error) {
	var e events.Event
	var typ string
	var ts int64
	var payload string
	if err := row.Scan(&e.ID, &e.SessionID, &e.WorkspaceID, &e.ParentID, &e.Sequence, &e.Depth,
		&typ, &ts, &payload, &e.Checksum); err != nil {
		return events.Event{}, err
	}
	e.Type = events.Type(typ)
	e.Timestamp = unixToTime(ts)
	e.Payload = json.RawMessage(payload)
	return e, nil
}
