package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(slog.Default())
	c := NewClient(hub, nil)
	hub.Register(c)

	if hub.ClientCount() != 1 {
		t.Fatalf("clients = %d, want 1", hub.ClientCount())
	}

	hub.Broadcast(NewMessage(KindCredit, "adgem", "u1", map[string]any{"points": 250}))

	select {
	case data := <-c.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Kind != KindCredit || msg.ProviderID != "adgem" || msg.UserID != "u1" {
			t.Errorf("msg = %+v", msg)
		}
		if msg.At.IsZero() {
			t.Error("message not timestamped")
		}
	default:
		t.Fatal("no message delivered")
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(slog.Default())
	c := NewClient(hub, nil)
	hub.Register(c)

	for i := 0; i < sendBufferSize+5; i++ {
		hub.Broadcast(NewMessage(KindAudit, "adgem", "u1", nil))
	}

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d (overflow dropped)", got, sendBufferSize)
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub(slog.Default())
	c := NewClient(hub, nil)
	hub.Register(c)
	hub.Unregister(c)

	if hub.ClientCount() != 0 {
		t.Errorf("clients = %d, want 0", hub.ClientCount())
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed")
	}

	// A second unregister is a no-op, not a double close.
	hub.Unregister(c)

	// Broadcasting with no clients must not panic.
	hub.Broadcast(NewMessage(KindAudit, "", "", nil))
}
