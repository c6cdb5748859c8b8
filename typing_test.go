package portal

import (
	"testing"
	"time"
)

func TestTypingExpiry(t *testing.T) {
	p, sock, clk := newTestProvider(t, "u1")
	typing := p.Typing()

	var changes int
	p.OnChange(func(c Change) {
		if c.Store == StoreTyping {
			changes++
		}
	})

	sock.push(EventTyping, map[string]any{"userId": "u2"})
	if !typing.IsTyping("u2", "") {
		t.Fatal("u2 should be typing")
	}

	// A second keystroke arms its own timer; it does not postpone the first.
	clk.Advance(time.Second)
	sock.push(EventTyping, map[string]any{"userId": "u2"})
	clk.Advance(time.Second)
	if typing.IsTyping("u2", "") {
		t.Error("flag should clear when the first timer fires")
	}
	clk.Advance(time.Second)
	if typing.IsTyping("u2", "") {
		t.Error("flag should stay clear")
	}
	if changes != 2 {
		t.Errorf("typing changes = %d, want 2 (set, clear)", changes)
	}
}

func TestTypingRooms(t *testing.T) {
	p, sock, clk := newTestProvider(t, "u1", WithTypingWindow(500*time.Millisecond))
	typing := p.Typing()

	sock.push(EventTyping, map[string]any{"userId": "u3", "roomId": "g1"})
	sock.push(EventTyping, map[string]any{"userId": "u2", "roomId": "g1"})
	sock.push(EventTyping, map[string]any{"userId": "u1", "roomId": "g1"})

	if got := typing.InRoom("g1"); !equalStrings(got, []string{"u2", "u3"}) {
		t.Errorf("InRoom = %v, want [u2 u3]", got)
	}
	if typing.IsTyping("u2", "") {
		t.Error("room typing leaked into the direct conversation")
	}
	clk.Advance(500 * time.Millisecond)
	if got := typing.InRoom("g1"); len(got) != 0 {
		t.Errorf("InRoom after window = %v", got)
	}
}

func TestTypingNotify(t *testing.T) {
	p, sock, _ := newTestProvider(t, "u1")

	if err := p.Typing().Notify("u2", ""); err != nil {
		t.Fatal(err)
	}
	sent := sock.sent(EventTyping)
	if len(sent) != 1 || sent[0].ack {
		t.Fatalf("typing emits = %+v", sent)
	}
	var ev typingEvent
	as(t, sent[0].data, &ev)
	if ev.UserID != "u1" || ev.Recipient != "u2" {
		t.Errorf("event = %+v", ev)
	}
}
