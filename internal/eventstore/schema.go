package eventstore

const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id             TEXT PRIMARY KEY,
	path           TEXT NOT NULL UNIQUE,
	name           TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	last_active_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id                    TEXT PRIMARY KEY,
	workspace_id          TEXT NOT NULL,
	model_id              TEXT NOT NULL DEFAULT '',
	working_dir           TEXT NOT NULL DEFAULT '',
	title                 TEXT NOT NULL DEFAULT '',
	tags                  TEXT NOT NULL DEFAULT '[]',
	parent_id             TEXT NOT NULL DEFAULT '',
	forked_from_id        TEXT NOT NULL DEFAULT '',
	spawning_session_id   TEXT NOT NULL DEFAULT '',
	created_at            INTEGER NOT NULL,
	last_active_at        INTEGER NOT NULL,
	ended_at              INTEGER,
	head_event_id         TEXT NOT NULL DEFAULT '',
	root_event_id         TEXT NOT NULL DEFAULT '',
	event_count           INTEGER NOT NULL DEFAULT 0,
	message_count         INTEGER NOT NULL DEFAULT 0,
	turn_count            INTEGER NOT NULL DEFAULT 0,
	total_input_tokens    INTEGER NOT NULL DEFAULT 0,
	total_output_tokens   INTEGER NOT NULL DEFAULT 0,
	total_cache_tokens    INTEGER NOT NULL DEFAULT 0,
	last_turn_input_tokens INTEGER NOT NULL DEFAULT 0,
	total_cost_usd        REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_id);

CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	parent_id    TEXT NOT NULL DEFAULT '',
	sequence     INTEGER NOT NULL,
	depth        INTEGER NOT NULL DEFAULT 0,
	type         TEXT NOT NULL,
	timestamp    INTEGER NOT NULL,
	payload      TEXT NOT NULL,
	checksum     TEXT NOT NULL DEFAULT '',
	UNIQUE(session_id, sequence)
);

CREATE INDEX IF NOT EXISTS idx_events_session_seq ON events(session_id, sequence);

CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
	event_id UNINDEXED,
	session_id UNINDEXED,
	type UNINDEXED,
	content,
	tool_name
);
`
