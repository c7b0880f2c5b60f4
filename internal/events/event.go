package events

import (
	"encoding/json"
	"time"
)

// Workspace is a filesystem root under which one or more sessions live.
type Workspace struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// Session is a conversation rooted in a workspace.
type Session struct {
	ID            string   `json:"id"`
	WorkspaceID   string   `json:"workspaceId"`
	ModelID       string   `json:"modelId"`
	WorkingDir    string   `json:"workingDir"`
	Title         string   `json:"title,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	ParentID      string   `json:"parentId,omitempty"`
	ForkedFromID  string   `json:"forkedFromId,omitempty"`
	SpawningID    string   `json:"spawningSessionId,omitempty"`

	CreatedAt    time.Time  `json:"createdAt"`
	LastActiveAt time.Time  `json:"lastActiveAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`

	HeadEventID string `json:"headEventId,omitempty"`
	RootEventID string `json:"rootEventId,omitempty"`

	Counters SessionCounters `json:"counters"`
}

// SessionCounters is the denormalized per-session aggregation kept in step
// with every appended event (§3.2 "Counter consistency").
type SessionCounters struct {
	EventCount        int64   `json:"eventCount"`
	MessageCount      int64   `json:"messageCount"`
	TurnCount         int64   `json:"turnCount"`
	TotalInputTokens  int64   `json:"totalInputTokens"`
	TotalOutputTokens int64   `json:"totalOutputTokens"`
	TotalCacheTokens  int64   `json:"totalCacheTokens"`
	LastTurnInputTokens int64 `json:"lastTurnInputTokens"`
	TotalCostUSD      float64 `json:"totalCostUsd"`
}

// Event is a single immutable record in a session's append-only log.
type Event struct {
	ID          string `json:"id"`
	SessionID   string `json:"sessionId"`
	WorkspaceID string `json:"workspaceId"`

	// ParentID is empty only for the event with Sequence == 0 (§3.2).
	ParentID string `json:"parentId,omitempty"`
	Sequence int64  `json:"sequence"`
	Depth    int    `json:"depth"`

	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`

	// Checksum is an optional content hash, set by callers that want
	// tamper-evidence over Payload; the store never computes or verifies it.
	Checksum string `json:"checksum,omitempty"`
}

// NewEvent constructs an Event with its Timestamp set to now and Payload
// marshaled from v. Sequence, ParentID, and IDs are assigned by the store
// at append time.
func NewEvent(sessionID, workspaceID string, typ Type, v any) (Event, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Event{}, err
	}
	return Event{
		SessionID:   sessionID,
		WorkspaceID: workspaceID,
		Type:        typ,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}, nil
}

// DecodePayload unmarshals e.Payload into v.
func (e Event) DecodePayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}
