package eventstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xonecas/tronrun/internal/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustAppend(t *testing.T, store *Store, sessionID string, typ events.Type, payload any) events.Event {
	t.Helper()
	e, err := events.NewEvent(sessionID, "", typ, payload)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	out, err := store.Append(sessionID, e)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	return out
}

func TestCreateWorkspace_IsIdempotentByPath(t *testing.T) {
	store := openTestStore(t)

	first, err := store.CreateWorkspace("/repo", "repo")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	second, err := store.CreateWorkspace("/repo", "renamed")
	if err != nil {
		t.Fatalf("CreateWorkspace (second): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("CreateWorkspace returned different ids for the same path: %q != %q", first.ID, second.ID)
	}
}

func TestCreateSession_And_GetSession(t *testing.T) {
	store := openTestStore(t)
	ws, err := store.CreateWorkspace("/repo", "repo")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}

	sess, err := store.CreateSession(ws.ID, "claude-x", "/repo")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("CreateSession returned empty ID")
	}

	got, err := store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.WorkspaceID != ws.ID || got.ModelID != "claude-x" {
		t.Errorf("GetSession = %+v, want workspace %q model claude-x", got, ws.ID)
	}
}

func TestCreateSubSession_RecordsSpawningID(t *testing.T) {
	store := openTestStore(t)
	ws, err := store.CreateWorkspace("/repo", "repo")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	parent, err := store.CreateSession(ws.ID, "claude-x", "/repo")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sub, err := store.CreateSubSession(ws.ID, "claude-x", "/repo", parent.ID)
	if err != nil {
		t.Fatalf("CreateSubSession: %v", err)
	}
	if sub.SpawningID != parent.ID {
		t.Errorf("SpawningID = %q, want %q", sub.SpawningID, parent.ID)
	}

	got, err := store.GetSession(sub.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.SpawningID != parent.ID {
		t.Errorf("GetSession.SpawningID = %q, want %q", got.SpawningID, parent.ID)
	}
}

func TestListSessionsByWorkspace_OrdersMostRecentFirstAndScopesByWorkspace(t *testing.T) {
	store := openTestStore(t)
	wsA, err := store.CreateWorkspace("/repo-a", "a")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	wsB, err := store.CreateWorkspace("/repo-b", "b")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}

	s1, err := store.CreateSession(wsA.ID, "m", "/repo-a")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	s2, err := store.CreateSession(wsA.ID, "m", "/repo-a")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := store.CreateSession(wsB.ID, "m", "/repo-b"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// EndSession sets ended_at only; last_active_at is moved by Append.
	if err := store.EndSession(s1.ID); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	// An event stamped an hour ahead makes s1 the most recently active.
	touch, err := events.NewEvent(s1.ID, "", events.MessageUser, events.NewUserMessage("hi"))
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	touch.Timestamp = touch.Timestamp.Add(time.Hour)
	if _, err := store.Append(s1.ID, touch); err != nil {
		t.Fatalf("Append: %v", err)
	}

	list, err := store.ListSessionsByWorkspace(wsA.ID)
	if err != nil {
		t.Fatalf("ListSessionsByWorkspace: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	ids := map[string]bool{list[0].ID: true, list[1].ID: true}
	if !ids[s1.ID] || !ids[s2.ID] {
		t.Errorf("ListSessionsByWorkspace(%q) = %v, want sessions %q and %q", wsA.ID, list, s1.ID, s2.ID)
	}
	if list[0].ID != s1.ID {
		t.Errorf("list[0].ID = %q, want most recently active %q", list[0].ID, s1.ID)
	}
}

func TestAppend_AssignsSequenceAndParentChain(t *testing.T) {
	store := openTestStore(t)
	ws, _ := store.CreateWorkspace("/repo", "repo")
	sess, err := store.CreateSession(ws.ID, "m", "/repo")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	first := mustAppend(t, store, sess.ID, events.MessageUser, map[string]string{"text": "hi"})
	second := mustAppend(t, store, sess.ID, events.MessageAssistant, map[string]string{"text": "hello"})

	if first.Sequence != 0 {
		t.Errorf("first.Sequence = %d, want 0", first.Sequence)
	}
	if second.Sequence != 1 {
		t.Errorf("second.Sequence = %d, want 1", second.Sequence)
	}
	if second.ParentID != first.ID {
		t.Errorf("second.ParentID = %q, want %q", second.ParentID, first.ID)
	}

	got, err := store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.HeadEventID != second.ID {
		t.Errorf("HeadEventID = %q, want %q", got.HeadEventID, second.ID)
	}
	if got.RootEventID != first.ID {
		t.Errorf("RootEventID = %q, want %q", got.RootEventID, first.ID)
	}
	if got.Counters.EventCount != 2 {
		t.Errorf("EventCount = %d, want 2", got.Counters.EventCount)
	}
}

func TestAppend_UnknownSessionFails(t *testing.T) {
	store := openTestStore(t)
	e, _ := events.NewEvent("missing-session", "", events.MessageUser, map[string]string{"text": "hi"})
	if _, err := store.Append("missing-session", e); err == nil {
		t.Error("expected error appending to a nonexistent session")
	}
}

func TestList_ReturnsEventsInSequenceOrder(t *testing.T) {
	store := openTestStore(t)
	ws, _ := store.CreateWorkspace("/repo", "repo")
	sess, _ := store.CreateSession(ws.ID, "m", "/repo")

	mustAppend(t, store, sess.ID, events.MessageUser, map[string]string{"text": "1"})
	mustAppend(t, store, sess.ID, events.MessageAssistant, map[string]string{"text": "2"})
	mustAppend(t, store, sess.ID, events.MessageUser, map[string]string{"text": "3"})

	list, err := store.List(sess.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len(list) = %d, want 3", len(list))
	}
	for i, e := range list {
		if e.Sequence != int64(i) {
			t.Errorf("list[%d].Sequence = %d, want %d", i, e.Sequence, i)
		}
	}
}

func TestRemoveBySession_DeletesEventsAndSession(t *testing.T) {
	store := openTestStore(t)
	ws, _ := store.CreateWorkspace("/repo", "repo")
	sess, _ := store.CreateSession(ws.ID, "m", "/repo")
	mustAppend(t, store, sess.ID, events.MessageUser, map[string]string{"text": "hi"})

	if err := store.RemoveBySession(sess.ID); err != nil {
		t.Fatalf("RemoveBySession: %v", err)
	}

	if _, err := store.GetSession(sess.ID); err == nil {
		t.Error("expected GetSession to fail after RemoveBySession")
	}
	list, err := store.List(sess.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("len(list) = %d, want 0 after removal", len(list))
	}
}
