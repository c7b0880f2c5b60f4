package eventstore

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/xonecas/tronrun/internal/events"
	"github.com/xonecas/tronrun/internal/ids"
	"github.com/xonecas/tronrun/internal/runtimeerr"
)

// CreateWorkspace inserts a new workspace rooted at path, or returns the
// existing one if path is already registered.
func (s *Store) CreateWorkspace(path, name string) (events.Workspace, error) {
	now := time.Now().UTC()
	w := events.Workspace{ID: ids.New(), Path: path, Name: name, CreatedAt: now, LastActiveAt: now}

	_, err := s.db.Exec(
		`INSERT INTO workspaces (id, path, name, created_at, last_active_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO NOTHING`,
		w.ID, w.Path, w.Name, w.CreatedAt.Unix(), w.LastActiveAt.Unix(),
	)
	if err != nil {
		return events.Workspace{}, runtimeerr.Wrap(runtimeerr.KindStorage, err, "create workspace")
	}
	return s.GetWorkspaceByPath(path)
}

// GetWorkspaceByPath looks up a workspace by its filesystem path.
func (s *Store) GetWorkspaceByPath(path string) (events.Workspace, error) {
	row := s.db.QueryRow(`SELECT id, path, name, created_at, last_active_at FROM workspaces WHERE path = ?`, path)
	return scanWorkspace(row)
}

func scanWorkspace(row scanner) (events.Workspace, error) {
	var w events.Workspace
	var created, active int64
	if err := row.Scan(&w.ID, &w.Path, &w.Name, &created, &active); err != nil {
		if err == sql.ErrNoRows {
			return events.Workspace{}, runtimeerr.New(runtimeerr.KindNotFound, "workspace")
		}
		return events.Workspace{}, runtimeerr.Wrap(runtimeerr.KindCorruptRow, err, "workspace")
	}
	w.CreatedAt = unixToTime(created)
	w.LastActiveAt = unixToTime(active)
	return w, nil
}

// CreateSession inserts a new, empty session in workspaceID.
func (s *Store) CreateSession(workspaceID, modelID, workingDir string) (events.Session, error) {
	now := time.Now().UTC()
	sess := events.Session{
		ID:           ids.New(),
		WorkspaceID:  workspaceID,
		ModelID:      modelID,
		WorkingDir:   workingDir,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, workspace_id, model_id, working_dir, created_at, last_active_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.WorkspaceID, sess.ModelID, sess.WorkingDir, sess.CreatedAt.Unix(), sess.LastActiveAt.Unix(),
	)
	if err != nil {
		return events.Session{}, runtimeerr.Wrap(runtimeerr.KindStorage, err, "create session")
	}
	return sess, nil
}

// CreateSubSession inserts a new session spawned by spawningSessionID, for a
// sub-agent run (§4.4's sub-agent spawn; events.Session.SpawningID).
func (s *Store) CreateSubSession(workspaceID, modelID, workingDir, spawningSessionID string) (events.Session, error) {
	now := time.Now().UTC()
	sess := events.Session{
		ID:           ids.New(),
		WorkspaceID:  workspaceID,
		ModelID:      modelID,
		WorkingDir:   workingDir,
		SpawningID:   spawningSessionID,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, workspace_id, model_id, working_dir, spawning_session_id, created_at, last_active_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.WorkspaceID, sess.ModelID, sess.WorkingDir, sess.SpawningID, sess.CreatedAt.Unix(), sess.LastActiveAt.Unix(),
	)
	if err != nil {
		return events.Session{}, runtimeerr.Wrap(runtimeerr.KindStorage, err, "create sub-session")
	}
	return sess, nil
}

// GetSession returns the full session row, including denormalized counters.
func (s *Store) GetSession(sessionID string) (events.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, workspace_id, model_id, working_dir, title, tags, parent_id, forked_from_id,
		       spawning_session_id, created_at, last_active_at, ended_at, head_event_id, root_event_id,
		       event_count, message_count, turn_count, total_input_tokens, total_output_tokens,
		       total_cache_tokens, last_turn_input_tokens, total_cost_usd
		FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

func scanSession(row scanner) (events.Session, error) {
	var sess events.Session
	var tagsJSON string
	var created, active int64
	var ended sql.NullInt64

	if err := row.Scan(
		&sess.ID, &sess.WorkspaceID, &sess.ModelID, &sess.WorkingDir, &sess.Title, &tagsJSON,
		&sess.ParentID, &sess.ForkedFromID, &sess.SpawningID,
		&created, &active, &ended, &sess.HeadEventID, &sess.RootEventID,
		&sess.Counters.EventCount, &sess.Counters.MessageCount, &sess.Counters.TurnCount,
		&sess.Counters.TotalInputTokens, &sess.Counters.TotalOutputTokens, &sess.Counters.TotalCacheTokens,
		&sess.Counters.LastTurnInputTokens, &sess.Counters.TotalCostUSD,
	); err != nil {
		if err == sql.ErrNoRows {
			return events.Session{}, runtimeerr.New(runtimeerr.KindSessionNotFound, "")
		}
		return events.Session{}, runtimeerr.Wrap(runtimeerr.KindCorruptRow, err, "session")
	}

	sess.CreatedAt = unixToTime(created)
	sess.LastActiveAt = unixToTime(active)
	if ended.Valid {
		t := unixToTime(ended.Int64)
		sess.EndedAt = &t
	}
	_ = json.Unmarshal([]byte(tagsJSON), &sess.Tags)
	return sess, nil
}

// ListSessionsByWorkspace returns every session rooted in workspaceID, most
// recently active first.
func (s *Store) ListSessionsByWorkspace(workspaceID string) ([]events.Session, error) {
	rows, err := s.db.Query(`
		SELECT id, workspace_id, model_id, working_dir, title, tags, parent_id, forked_from_id,
		       spawning_session_id, created_at, last_active_at, ended_at, head_event_id, root_event_id,
		       event_count, message_count, turn_count, total_input_tokens, total_output_tokens,
		       total_cache_tokens, last_turn_input_tokens, total_cost_usd
		FROM sessions WHERE workspace_id = ? ORDER BY last_active_at DESC`, workspaceID)
	if err != nil {
		return nil, runtimeerr.Wrap(runtimeerr.KindStorage, err, "list sessions")
	}
	defer rows.Close()

	var out []events.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// EndSession marks a session ended.
func (s *Store) EndSession(sessionID string) error {
	res, err := s.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, time.Now().UTC().Unix(), sessionID)
	if err != nil {
		return runtimeerr.Wrap(runtimeerr.KindStorage, err, "end session")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return runtimeerr.New(runtimeerr.KindSessionNotFound, sessionID)
	}
	return nil
}

// RemoveBySession cascades delete of a session's events, FTS rows, and the
// session row itself, inside one transaction.
func (s *Store) RemoveBySession(sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return withBusyRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM events_fts WHERE session_id = ?`, sessionID); err != nil {
			rollback(tx)
			return err
		}
		if _, err := tx.Exec(`DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
			rollback(tx)
			return err
		}
		res, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID)
		if err != nil {
			rollback(tx)
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			rollback(tx)
			return runtimeerr.New(runtimeerr.KindSessionNotFound, sessionID)
		}
		return tx.Commit()
	})
}

// SearchResult is one FTS hit.
type SearchResult struct {
	EventID   string
	SessionID string
	Type      events.Type
	Snippet   string
}

// Search runs a full-text query, optionally scoped to one session.
func (s *Store) Search(query, sessionID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	sqlQuery := `SELECT event_id, session_id, type, snippet(events_fts, 3, '[', ']', '...', 10)
	             FROM events_fts WHERE events_fts MATCH ?`
	args := []any{query}
	if sessionID != "" {
		sqlQuery += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	sqlQuery += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, runtimeerr.Wrap(runtimeerr.KindStorage, err, "search")
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var typ string
		if err := rows.Scan(&r.EventID, &r.SessionID, &typ, &r.Snippet); err != nil {
			return nil, runtimeerr.Wrap(runtimeerr.KindCorruptRow, err, "search row")
		}
		r.Type = events.Type(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}
