package portal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hrportal/portal/sdk/golang/internal/clock"
)

const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultRetryDelay     = 5 * time.Second
	DefaultMaxRetries     = 3
)

// SessionConfig tunes a Session. Zero fields take the defaults above.
type SessionConfig struct {
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	Clock          clock.Clock
	Logger         *slog.Logger
}

func (c *SessionConfig) defaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Session owns the one connection of one identity. Status follows the
// socket's lifecycle events only:
//
//	idle -> connecting -> connected
//	connecting|connected -> disconnected
//	connecting -> error -> (retry, at most MaxRetries) -> connecting
//
// A nil *Session is valid and behaves as a session with no connection:
// every request fails with ErrNotConnected.
type Session struct {
	identity string
	socket   Socket
	config   SessionConfig

	mu         sync.Mutex
	status     Status
	failures   int
	attempts   int
	retryTimer clock.Timer
	startCtx   context.Context
	attached   []string
	watchers   []func(Status)
	changed    chan struct{}
	lost       chan struct{}
	closed     chan struct{}
	isClosed   bool
}

// NewSession binds socket to identity and attaches the lifecycle
// handlers. It does not connect; call Start once every other handler
// is attached so no early push is missed. An empty identity yields a
// nil session and a logged warning.
func NewSession(identity string, socket Socket, config *SessionConfig) *Session {
	var cfg SessionConfig
	if config != nil {
		cfg = *config
	}
	cfg.defaults()

	if identity == "" {
		cfg.Logger.Warn("realtime session not created: identity is empty")
		return nil
	}

	s := &Session{
		identity: identity,
		socket:   socket,
		config:   cfg,
		status:   StatusIdle,
		changed:  make(chan struct{}),
		closed:   make(chan struct{}),
	}
	s.On(EventConnect, func(Payload) { s.handleConnect() })
	s.On(EventDisconnect, s.handleDisconnect)
	s.On(EventConnectError, s.handleConnectError)
	return s
}

// Identity returns the user this session registers as.
func (s *Session) Identity() string {
	if s == nil {
		return ""
	}
	return s.identity
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	if s == nil {
		return StatusIdle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Failures returns the number of connect errors since the last
// successful connect.
func (s *Session) Failures() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// IsConnected reports whether requests may be issued.
func (s *Session) IsConnected() bool { return s.Status() == StatusConnected }

// On attaches a persistent handler and records the event name so Close
// can detach it again.
func (s *Session) On(event string, h Handler) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attached = append(s.attached, event)
	s.mu.Unlock()
	s.socket.On(event, h)
}

// OnStatus registers fn to observe every status transition.
func (s *Session) OnStatus(fn func(Status)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

// Start opens the connection.
func (s *Session) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.isClosed || s.status == StatusConnecting || s.status == StatusConnected {
		s.mu.Unlock()
		return
	}
	s.startCtx = ctx
	notify := s.setStatus(StatusConnecting)
	s.mu.Unlock()

	notify()
	s.socket.Connect(ctx)
}

// Reconnect restarts a session whose retries are exhausted, resetting
// the retry budget.
func (s *Session) Reconnect(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.isClosed || s.status == StatusConnected || s.status == StatusConnecting {
		s.mu.Unlock()
		return
	}
	s.failures = 0
	s.attempts = 0
	s.stopRetry()
	s.startCtx = ctx
	notify := s.setStatus(StatusConnecting)
	s.mu.Unlock()

	notify()
	s.socket.Connect(ctx)
}

// WaitConnected blocks until the session is connected.
func (s *Session) WaitConnected(ctx context.Context) error {
	if s == nil {
		return ErrNotConnected
	}
	for {
		s.mu.Lock()
		if s.status == StatusConnected {
			s.mu.Unlock()
			return nil
		}
		changed, closed := s.changed, s.closed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-closed:
			return ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close detaches every handler attached through On, then disconnects.
// Requests still waiting fail with ErrSessionClosed.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.stopRetry()
	close(s.closed)
	events := s.attached
	s.attached = nil
	notify := s.setStatus(StatusDisconnected)
	s.mu.Unlock()

	seen := make(map[string]struct{}, len(events))
	for _, event := range events {
		if _, dup := seen[event]; dup {
			continue
		}
		seen[event] = struct{}{}
		s.socket.Off(event)
	}
	err := s.socket.Disconnect()
	notify()
	return err
}

// ============================================================================
// Lifecycle handlers
// ============================================================================

func (s *Session) handleConnect() {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return
	}
	s.failures = 0
	s.attempts = 0
	s.stopRetry()
	s.lost = make(chan struct{})
	notify := s.setStatus(StatusConnected)
	s.mu.Unlock()

	if err := s.socket.Emit(EventRegister, s.identity); err != nil {
		s.config.Logger.Warn("register failed", "identity", s.identity, "error", err)
	}
	s.config.Logger.Info("realtime connected", "identity", s.identity)
	notify()
}

func (s *Session) handleDisconnect(p Payload) {
	var reason string
	_ = p.Decode(&reason)

	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return
	}
	if s.lost != nil {
		close(s.lost)
		s.lost = nil
	}
	notify := s.setStatus(StatusDisconnected)
	s.mu.Unlock()

	s.config.Logger.Info("realtime disconnected", "identity", s.identity, "reason", reason)
	notify()
}

func (s *Session) handleConnectError(p Payload) {
	var body connectErrorPayload
	_ = p.Decode(&body)

	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return
	}
	s.failures++
	failures := s.failures
	notify := s.setStatus(StatusError)
	scheduled := false
	if s.retryTimer == nil && s.attempts < s.config.MaxRetries {
		s.attempts++
		scheduled = true
		s.retryTimer = s.config.Clock.AfterFunc(s.config.RetryDelay, s.retry)
	}
	attempt := s.attempts
	s.mu.Unlock()

	if scheduled {
		s.config.Logger.Warn("realtime connect failed, retry scheduled",
			"identity", s.identity, "error", body.Message, "attempt", attempt, "delay", s.config.RetryDelay)
	} else {
		s.config.Logger.Error("realtime connect failed, giving up",
			"identity", s.identity, "error", body.Message, "failures", failures)
	}
	notify()
}

// retry runs on the supervisor timer.
func (s *Session) retry() {
	s.mu.Lock()
	s.retryTimer = nil
	if s.isClosed || s.status != StatusError {
		s.mu.Unlock()
		return
	}
	ctx := s.startCtx
	notify := s.setStatus(StatusConnecting)
	s.mu.Unlock()

	notify()
	s.socket.Connect(ctx)
}

// stopRetry cancels a pending supervisor timer. Callers hold s.mu.
func (s *Session) stopRetry() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// setStatus records a transition and returns a func that notifies
// watchers. Callers hold s.mu and invoke the func after unlocking.
func (s *Session) setStatus(st Status) func() {
	if s.status == st {
		return func() {}
	}
	s.status = st
	close(s.changed)
	s.changed = make(chan struct{})
	watchers := append(([]func(Status))(nil), s.watchers...)
	return func() {
		for _, w := range watchers {
			w(st)
		}
	}
}

// ============================================================================
// Requests
// ============================================================================

// Emit sends a fire-and-forget event.
func (s *Session) Emit(event string, payload any) error {
	if s == nil || !s.IsConnected() {
		return ErrNotConnected
	}
	if err := s.socket.Emit(event, payload); err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}
	return nil
}

// Call emits event with an acknowledgement and blocks for the reply.
// It fails at once with ErrNotConnected when there is no live
// connection, and otherwise gives up on timeout, cancellation, loss of
// the connection or Close.
func (s *Session) Call(ctx context.Context, event string, payload any) (Payload, error) {
	if s == nil {
		return Payload{}, ErrNotConnected
	}
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return Payload{}, ErrSessionClosed
	}
	if s.status != StatusConnected || s.socket == nil {
		s.mu.Unlock()
		return Payload{}, ErrNotConnected
	}
	lost, closed := s.lost, s.closed
	s.mu.Unlock()

	reply := make(chan Payload, 1)
	err := s.socket.EmitWithAck(event, payload, func(p Payload) {
		select {
		case reply <- p:
		default:
		}
	})
	if err != nil {
		return Payload{}, fmt.Errorf("%s: %w", event, err)
	}

	select {
	case p := <-reply:
		return p, nil
	case <-lost:
		return Payload{}, fmt.Errorf("%s: connection lost: %w", event, ErrNotConnected)
	case <-closed:
		return Payload{}, fmt.Errorf("%s: %w", event, ErrSessionClosed)
	case <-ctx.Done():
		return Payload{}, fmt.Errorf("%s: %w", event, ctx.Err())
	case <-s.config.Clock.After(s.config.RequestTimeout):
		return Payload{}, fmt.Errorf("%s: %w", event, context.DeadlineExceeded)
	}
}

// ackStatus is the common part of object acknowledgements.
type ackStatus struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// checkAck turns a {success: false} reply into a *ServerError. Bare
// values (arrays, strings) count as success.
func checkAck(event string, p Payload) error {
	var st ackStatus
	if err := p.Decode(&st); err != nil {
		return nil
	}
	if st.Success != nil && !*st.Success {
		return &ServerError{Op: event, Message: st.Error}
	}
	return nil
}

// Request issues event and decodes the whole acknowledgement into T.
func Request[T any](ctx context.Context, s *Session, event string, payload any) (T, error) {
	var out T
	p, err := s.Call(ctx, event, payload)
	if err != nil {
		return out, err
	}
	if err := checkAck(event, p); err != nil {
		return out, err
	}
	if p.Empty() {
		return out, nil
	}
	if err := p.Decode(&out); err != nil {
		return out, fmt.Errorf("%s: decode reply: %w", event, err)
	}
	return out, nil
}

// RequestField issues event and decodes the named member of the reply
// into T. A reply without that member is decoded whole, unless it is a
// bare status object, which yields the zero T.
func RequestField[T any](ctx context.Context, s *Session, event string, payload any, field string) (T, error) {
	var out T
	p, err := s.Call(ctx, event, payload)
	if err != nil {
		return out, err
	}
	if err := checkAck(event, p); err != nil {
		return out, err
	}
	if f, ok := p.Field(field); ok {
		p = f
	} else if statusOnly(p) {
		return out, nil
	}
	if p.Empty() {
		return out, nil
	}
	if err := p.Decode(&out); err != nil {
		return out, fmt.Errorf("%s: decode %s: %w", event, field, err)
	}
	return out, nil
}

func statusOnly(p Payload) bool {
	var st ackStatus
	return p.Decode(&st) == nil && st.Success != nil
}

// callStatus issues a request whose reply carries only a status.
func (s *Session) callStatus(ctx context.Context, event string, payload any) error {
	p, err := s.Call(ctx, event, payload)
	if err != nil {
		return err
	}
	return checkAck(event, p)
}
