package portal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

// Handler receives the body of a pushed event.
type Handler func(Payload)

// AckFunc receives the server's one-shot reply to a request.
type AckFunc func(Payload)

// Socket is a single bidirectional event connection. Lifecycle changes
// are reported as the connect, disconnect and connect_error events
// through the same handler table as server pushes. A Socket never
// reconnects by itself; the Session owns retry policy.
type Socket interface {
	// Connect starts establishing the connection and returns at once.
	Connect(ctx context.Context)
	// Disconnect closes the connection.
	Disconnect() error
	// Connected reports whether a live connection handle exists.
	Connected() bool

	On(event string, h Handler)
	// Off detaches every handler registered for event.
	Off(event string)

	Emit(event string, data any) error
	EmitWithAck(event string, data any, ack AckFunc) error
}

// ============================================================================
// Event Dispatcher
// ============================================================================

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newEventDispatcher() *eventDispatcher {
	return &eventDispatcher{handlers: make(map[string][]Handler)}
}

func (d *eventDispatcher) on(event string, h Handler) {
	d.mu.Lock()
	d.handlers[event] = append(d.handlers[event], h)
	d.mu.Unlock()
}

func (d *eventDispatcher) off(event string) {
	d.mu.Lock()
	delete(d.handlers, event)
	d.mu.Unlock()
}

func (d *eventDispatcher) count(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event])
}

// dispatch runs handlers synchronously on the caller's goroutine so
// events are observed in arrival order.
func (d *eventDispatcher) dispatch(event string, p Payload) {
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[event]...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(p)
	}
}

// ============================================================================
// WSSocket
// ============================================================================

// WSConfig configures a WSSocket.
type WSConfig struct {
	// URL is the ws:// or wss:// endpoint.
	URL string
	// Token is sent as a bearer header and as the token cookie.
	Token        string
	Codec        Codec
	HTTPClient   *http.Client
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// ReadLimit caps a single inbound frame. History replies can be
	// large, so the default is well above the library's 32 KiB.
	ReadLimit int64
	Logger    *slog.Logger
}

func (c *WSConfig) defaults() {
	if c.Codec == nil {
		c.Codec = JSONCodec{}
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 20 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 4 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

type connectErrorPayload struct {
	Message string `json:"message"`
}

// WSSocket is a Socket over a websocket connection.
type WSSocket struct {
	config     *WSConfig
	dispatcher *eventDispatcher

	mu       sync.Mutex
	conn     *websocket.Conn
	cancelFn context.CancelFunc
	// gen identifies the current dial. Connect and Disconnect advance
	// it; a dial finishing under an older gen is discarded unseen.
	gen        uint64
	dialCancel context.CancelFunc

	ackSeq    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]AckFunc
}

// NewWSSocket creates an unconnected socket. Attach handlers, then call
// Connect.
func NewWSSocket(config *WSConfig) *WSSocket {
	cfg := *config
	cfg.defaults()
	return &WSSocket{
		config:     &cfg,
		dispatcher: newEventDispatcher(),
		pending:    make(map[uint64]AckFunc),
	}
}

// On registers a handler for event.
func (ws *WSSocket) On(event string, h Handler) { ws.dispatcher.on(event, h) }

// Off removes every handler for event.
func (ws *WSSocket) Off(event string) { ws.dispatcher.off(event) }

// Connected reports whether the socket holds a live connection.
func (ws *WSSocket) Connected() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.conn != nil
}

// Connect dials in the background. Success raises connect, failure
// raises connect_error. A dial still in flight is abandoned in favor of
// this one.
func (ws *WSSocket) Connect(ctx context.Context) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.conn != nil {
		return
	}
	if ws.dialCancel != nil {
		ws.dialCancel()
	}
	ws.gen++
	dialCtx, cancel := context.WithTimeout(ctx, ws.config.DialTimeout)
	ws.dialCancel = cancel

	go ws.dial(dialCtx, cancel, ws.gen)
}

func (ws *WSSocket) dial(dialCtx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()

	header := http.Header{}
	if ws.config.Token != "" {
		header.Set("Authorization", "Bearer "+ws.config.Token)
		header.Set("Cookie", (&http.Cookie{Name: "token", Value: ws.config.Token}).String())
	}

	conn, _, err := websocket.Dial(dialCtx, ws.config.URL, &websocket.DialOptions{
		HTTPClient: ws.config.HTTPClient,
		HTTPHeader: header,
	})

	ws.mu.Lock()
	if gen != ws.gen {
		ws.mu.Unlock()
		ws.config.Logger.Debug("discarding superseded dial", "url", ws.config.URL)
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "superseded")
		}
		return
	}
	ws.dialCancel = nil
	if err != nil {
		ws.mu.Unlock()
		ws.config.Logger.Debug("websocket dial failed", "url", ws.config.URL, "error", err)
		ws.dispatchLocal(EventConnectError, connectErrorPayload{Message: err.Error()})
		return
	}
	conn.SetReadLimit(ws.config.ReadLimit)
	// The connection outlives the dial context.
	connCtx, cancelConn := context.WithCancel(context.Background())
	ws.conn = conn
	ws.cancelFn = cancelConn
	ws.mu.Unlock()

	go ws.readLoop(connCtx, conn)
	ws.dispatchLocal(EventConnect, nil)
}

// Disconnect closes the connection and abandons any dial in flight.
// No reconnect follows.
func (ws *WSSocket) Disconnect() error {
	ws.mu.Lock()
	ws.gen++
	if ws.dialCancel != nil {
		ws.dialCancel()
		ws.dialCancel = nil
	}
	conn := ws.conn
	ws.conn = nil
	cancel := ws.cancelFn
	ws.cancelFn = nil
	ws.mu.Unlock()

	ws.dropPending()

	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "client disconnect")
	if cancel != nil {
		cancel()
	}
	ws.dispatchLocal(EventDisconnect, "io client disconnect")
	return err
}

// Emit sends a fire-and-forget event.
func (ws *WSSocket) Emit(event string, data any) error {
	return ws.write(event, 0, data)
}

// EmitWithAck sends event and arranges for ack to receive the server's
// reply. ack is dropped, never called, if the connection goes away
// first.
func (ws *WSSocket) EmitWithAck(event string, data any, ack AckFunc) error {
	id := ws.ackSeq.Add(1)
	ws.pendingMu.Lock()
	ws.pending[id] = ack
	ws.pendingMu.Unlock()

	if err := ws.write(event, id, data); err != nil {
		ws.pendingMu.Lock()
		delete(ws.pending, id)
		ws.pendingMu.Unlock()
		return err
	}
	return nil
}

func (ws *WSSocket) write(event string, ack uint64, data any) error {
	ws.mu.Lock()
	conn := ws.conn
	ws.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := ws.config.Codec.EncodeFrame(event, ack, data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), ws.config.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, ws.config.Codec.MessageType(), frame)
}

func (ws *WSSocket) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Only the loop of the current connection reports its loss.
			// Disconnect clears ws.conn first, so a deliberate close
			// ends here silently.
			ws.mu.Lock()
			current := ws.conn == conn
			if current {
				ws.conn = nil
				if ws.cancelFn != nil {
					ws.cancelFn()
					ws.cancelFn = nil
				}
			}
			ws.mu.Unlock()
			if !current {
				return
			}

			ws.dropPending()
			reason := "transport close"
			if status := websocket.CloseStatus(err); status != -1 {
				reason = status.String()
			} else if !errors.Is(err, context.Canceled) {
				reason = err.Error()
			}
			ws.config.Logger.Debug("websocket read ended", "reason", reason)
			ws.dispatchLocal(EventDisconnect, reason)
			return
		}

		event, ack, p, err := ws.config.Codec.DecodeFrame(data)
		if err != nil {
			ws.config.Logger.Debug("dropping malformed frame", "error", err)
			continue
		}

		if event == eventAck {
			ws.pendingMu.Lock()
			cb, ok := ws.pending[ack]
			delete(ws.pending, ack)
			ws.pendingMu.Unlock()
			if ok {
				cb(p)
			}
			continue
		}

		ws.dispatcher.dispatch(event, p)
	}
}

func (ws *WSSocket) dispatchLocal(event string, v any) {
	p, err := NewPayload(ws.config.Codec, v)
	if err != nil {
		p = Payload{codec: ws.config.Codec}
	}
	ws.dispatcher.dispatch(event, p)
}

func (ws *WSSocket) dropPending() {
	ws.pendingMu.Lock()
	for id := range ws.pending {
		delete(ws.pending, id)
	}
	ws.pendingMu.Unlock()
}
