package eventbus

import (
	"testing"
	"time"

	"github.com/xonecas/tronrun/internal/events"
)

func TestPublishEvent_RoutesToMatchingSession(t *testing.T) {
	hub := New(4)
	subA := hub.Subscribe("session-a")
	subB := hub.Subscribe("session-b")
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	hub.PublishEvent(events.Event{SessionID: "session-a", Type: events.MessageAssistant})

	select {
	case msg := <-subA.C:
		if msg.Event.SessionID != "session-a" {
			t.Errorf("SessionID = %q, want session-a", msg.Event.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("subA never received the event")
	}

	select {
	case msg := <-subB.C:
		t.Fatalf("subB should not have received a session-a event, got %+v", msg)
	default:
	}
}

func TestPublishEvent_EmptySessionBroadcastsToAll(t *testing.T) {
	hub := New(4)
	subA := hub.Subscribe("session-a")
	subGlobal := hub.Subscribe("")
	defer subA.Unsubscribe()
	defer subGlobal.Unsubscribe()

	hub.PublishEvent(events.Event{Type: events.SessionEnd})

	for name, sub := range map[string]*Subscription{"session-scoped": subA, "global": subGlobal} {
		select {
		case <-sub.C:
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber never received the broadcast event", name)
		}
	}
}

func TestPublishNotice_DeliversEphemeralPayload(t *testing.T) {
	hub := New(4)
	sub := hub.Subscribe("session-a")
	defer sub.Unsubscribe()

	hub.PublishNotice("session-a", "turn_start", map[string]any{"turn": 3})

	select {
	case msg := <-sub.C:
		if msg.Name != "turn_start" {
			t.Errorf("Name = %q, want turn_start", msg.Name)
		}
		payload, ok := msg.Payload.(map[string]any)
		if !ok || payload["turn"] != 3 {
			t.Errorf("Payload = %+v", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the notice")
	}
}

func TestPublish_DropsRatherThanBlocksWhenSubscriberIsFull(t *testing.T) {
	hub := New(1)
	sub := hub.Subscribe("session-a")
	defer sub.Unsubscribe()

	hub.PublishEvent(events.Event{SessionID: "session-a", Type: events.MessageAssistant})
	hub.PublishEvent(events.Event{SessionID: "session-a", Type: events.MessageAssistant})
	hub.PublishEvent(events.Event{SessionID: "session-a", Type: events.MessageAssistant})

	if got := sub.Lagged(); got != 2 {
		t.Errorf("Lagged() = %d, want 2", got)
	}
	<-sub.C
}

func TestUnsubscribe_ClosesChannelAndStopsRouting(t *testing.T) {
	hub := New(4)
	sub := hub.Subscribe("session-a")
	sub.Unsubscribe()

	hub.PublishEvent(events.Event{SessionID: "session-a", Type: events.MessageAssistant})

	if _, ok := <-sub.C; ok {
		t.Error("expected the channel to be closed after Unsubscribe")
	}
}

func TestShutdown_ClosesAllSubscriptions(t *testing.T) {
	hub := New(4)
	subA := hub.Subscribe("session-a")
	subB := hub.Subscribe("session-b")

	hub.Shutdown()

	if _, ok := <-subA.C; ok {
		t.Error("subA channel should be closed after Shutdown")
	}
	if _, ok := <-subB.C; ok {
		t.Error("subB channel should be closed after Shutdown")
	}
}
