package portal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hrportal/portal/sdk/golang/internal/clock"
)

// ============================================================================
// Test Helpers
// ============================================================================

// noReply makes a responder leave the request unacknowledged.
var noReply = struct{}{}

type emitted struct {
	event string
	data  any
	ack   bool
}

// fakeSocket is an in-memory Socket. Lifecycle events are raised by
// the test through open, fail and drop; requests are answered by
// per-event responders.
type fakeSocket struct {
	codec      Codec
	dispatcher *eventDispatcher

	mu         sync.Mutex
	connected  bool
	connects   int
	disconnect int
	emits      []emitted
	offs       []string
	responders map[string]func(data any) any
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		codec:      JSONCodec{},
		dispatcher: newEventDispatcher(),
		responders: make(map[string]func(any) any),
	}
}

func (f *fakeSocket) Connect(ctx context.Context) {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
}

func (f *fakeSocket) Disconnect() error {
	f.mu.Lock()
	f.connected = false
	f.disconnect++
	f.mu.Unlock()
	return nil
}

func (f *fakeSocket) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSocket) On(event string, h Handler) { f.dispatcher.on(event, h) }

func (f *fakeSocket) Off(event string) {
	f.mu.Lock()
	f.offs = append(f.offs, event)
	f.mu.Unlock()
	f.dispatcher.off(event)
}

func (f *fakeSocket) Emit(event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.emits = append(f.emits, emitted{event: event, data: data})
	return nil
}

func (f *fakeSocket) EmitWithAck(event string, data any, ack AckFunc) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return ErrNotConnected
	}
	f.emits = append(f.emits, emitted{event: event, data: data, ack: true})
	respond := f.responders[event]
	f.mu.Unlock()

	if respond == nil {
		return nil
	}
	reply := respond(data)
	if reply == noReply {
		return nil
	}
	ack(f.payload(reply))
	return nil
}

// respond installs the reply for event.
func (f *fakeSocket) respond(event string, fn func(data any) any) {
	f.mu.Lock()
	f.responders[event] = fn
	f.mu.Unlock()
}

// reply installs a fixed reply for event.
func (f *fakeSocket) reply(event string, body any) {
	f.respond(event, func(any) any { return body })
}

func (f *fakeSocket) payload(v any) Payload {
	p, err := NewPayload(f.codec, v)
	if err != nil {
		panic(err)
	}
	return p
}

func (f *fakeSocket) push(event string, v any) {
	f.dispatcher.dispatch(event, f.payload(v))
}

func (f *fakeSocket) open() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.push(EventConnect, nil)
}

func (f *fakeSocket) fail(msg string) {
	f.push(EventConnectError, connectErrorPayload{Message: msg})
}

func (f *fakeSocket) drop(reason string) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.push(EventDisconnect, reason)
}

func (f *fakeSocket) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// sent returns the emits recorded for event.
func (f *fakeSocket) sent(event string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.emits {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeSocket) emitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emits)
}

// as re-encodes a recorded payload into v.
func as(t *testing.T, data any, v any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
}

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// newTestProvider returns a started, connected provider for identity
// over a fake socket and clock.
func newTestProvider(t *testing.T, identity string, opts ...ProviderOption) (*Provider, *fakeSocket, *clock.FakeClock) {
	t.Helper()
	sock := newFakeSocket()
	clk := clock.Fake(testEpoch)
	base := []ProviderOption{WithSocket(sock), WithClock(clk), WithGroupResync(false)}
	p, err := NewProvider(identity, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sock.open()
	if !p.IsConnected() {
		t.Fatalf("status = %s after open", p.Status())
	}
	return p, sock, clk
}

// waitPending blocks until clk has at least n timers armed.
func waitPending(t *testing.T, clk *clock.FakeClock, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for clk.Pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d pending timers (have %d)", n, clk.Pending())
		}
		time.Sleep(time.Millisecond)
	}
}
