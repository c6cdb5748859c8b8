package portal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrportal/portal/sdk/golang/internal/clock"
)

// ============================================================================
// Options
// ============================================================================

type providerConfig struct {
	client           *Client
	socket           Socket
	codec            Codec
	logger           *slog.Logger
	clock            clock.Clock
	requestTimeout   time.Duration
	maxRetries       int
	retryDelay       time.Duration
	typingWindow     time.Duration
	groupResync      bool
	refreshOnConnect bool
	profiles         ProfileLookup
}

// ProviderOption configures a Provider.
type ProviderOption func(*providerConfig)

// WithClient builds sockets and profile lookups from client.
func WithClient(client *Client) ProviderOption {
	return func(c *providerConfig) { c.client = client }
}

// WithSocket uses socket instead of dialing through a Client. The same
// socket is reused across identity changes.
func WithSocket(socket Socket) ProviderOption {
	return func(c *providerConfig) { c.socket = socket }
}

// WithCodec selects the wire codec for sockets built from the Client.
func WithCodec(codec Codec) ProviderOption {
	return func(c *providerConfig) { c.codec = codec }
}

func WithLogger(logger *slog.Logger) ProviderOption {
	return func(c *providerConfig) { c.logger = logger }
}

func WithClock(clk clock.Clock) ProviderOption {
	return func(c *providerConfig) { c.clock = clk }
}

// WithRequestTimeout bounds every request/response call.
func WithRequestTimeout(d time.Duration) ProviderOption {
	return func(c *providerConfig) { c.requestTimeout = d }
}

// WithReconnect sets how many supervised reconnects follow a connect
// error and how long each waits.
func WithReconnect(attempts int, delay time.Duration) ProviderOption {
	return func(c *providerConfig) {
		c.maxRetries = attempts
		c.retryDelay = delay
	}
}

func WithTypingWindow(d time.Duration) ProviderOption {
	return func(c *providerConfig) { c.typingWindow = d }
}

// WithGroupResync controls whether group broadcasts trigger a group
// list refetch. On by default.
func WithGroupResync(enabled bool) ProviderOption {
	return func(c *providerConfig) { c.groupResync = enabled }
}

// WithRefreshOnConnect runs Refresh after every successful connect.
func WithRefreshOnConnect(enabled bool) ProviderOption {
	return func(c *providerConfig) { c.refreshOnConnect = enabled }
}

// WithProfileLookup overrides the sender lookup used for pushed
// messages. Defaults to the Client's profiles when a Client is set.
func WithProfileLookup(lookup ProfileLookup) ProviderOption {
	return func(c *providerConfig) { c.profiles = lookup }
}

// ============================================================================
// Provider
// ============================================================================

var errNoSocketSource = errors.New("portal: provider needs WithClient or WithSocket")

// Provider is the composition root: one Session for the current
// identity and every store wired to its event stream. Build it once and
// pass it to whatever needs realtime state.
type Provider struct {
	config  providerConfig
	emitter changeEmitter

	mu            sync.RWMutex
	identity      string
	session       *Session
	presence      *Presence
	directory     *Directory
	conversations *Conversations
	notifications *Notifications
	groups        *Groups
	typing        *Typing
	attached      bool
	closed        bool
}

// NewProvider wires a provider for identity. It does not connect; call
// Start. An empty identity gives a provider without a session whose
// requests all fail with ErrNotConnected.
func NewProvider(identity string, opts ...ProviderOption) (*Provider, error) {
	cfg := providerConfig{groupResync: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.socket == nil && cfg.client == nil {
		return nil, errNoSocketSource
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.clock == nil {
		cfg.clock = clock.Real()
	}
	if cfg.requestTimeout == 0 {
		cfg.requestTimeout = DefaultRequestTimeout
	}
	if cfg.profiles == nil && cfg.client != nil {
		cfg.profiles = cfg.client.Profiles()
	}

	p := &Provider{config: cfg}
	p.emitter.logger = cfg.logger
	p.build(identity)
	return p, nil
}

// build creates the session and stores for identity. Callers hold p.mu
// or have exclusive access.
func (p *Provider) build(identity string) {
	cfg := p.config
	logger := cfg.logger.With("identity", identity)
	notify := notifier(p.emitter.emit)

	socket := cfg.socket
	if socket == nil && identity != "" {
		socket = cfg.client.NewSocket(cfg.codec)
	}
	s := NewSession(identity, socket, &SessionConfig{
		RequestTimeout: cfg.requestTimeout,
		MaxRetries:     cfg.maxRetries,
		RetryDelay:     cfg.retryDelay,
		Clock:          cfg.clock,
		Logger:         logger,
	})

	presence := newPresence(notify)
	directory := &Directory{
		self:     identity,
		session:  s,
		presence: presence,
		notify:   notify,
		logger:   logger,
	}
	if cfg.groupResync {
		directory.resync = func() { p.resyncGroups(directory) }
	}

	p.identity = identity
	p.session = s
	p.attached = false
	p.presence = presence
	p.directory = directory
	p.conversations = &Conversations{
		session:       s,
		clock:         cfg.clock,
		profiles:      cfg.profiles,
		lookupTimeout: cfg.requestTimeout,
		notify:        notify,
		logger:        logger,
		threads:       map[string][]Message{},
	}
	p.notifications = &Notifications{session: s, notify: notify, logger: logger}
	p.groups = &Groups{self: identity, session: s, directory: directory, logger: logger}
	p.typing = newTyping(identity, s, cfg.clock, cfg.typingWindow, notify)

	s.OnStatus(func(st Status) {
		notify.changed(StoreStatus, string(st))
		if st == StatusConnected && cfg.refreshOnConnect {
			go p.refreshAfterConnect(s)
		}
	})
}

// Start attaches every store's handlers and then opens the connection,
// so no push that arrives right after connect is missed.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.RLock()
	s := p.session
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrSessionClosed
	}
	if s == nil {
		return ErrEmptyIdentity
	}
	p.attach()
	s.Start(ctx)
	return nil
}

// attach wires the stores to the session once per session.
func (p *Provider) attach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attached {
		return
	}
	p.attached = true
	s := p.session
	p.presence.attach(s)
	p.directory.attach(s)
	p.conversations.attach(s)
	p.notifications.attach(s)
	p.typing.attach(s)
}

// SetIdentity tears down the current session and its state and builds
// a fresh one for identity. The new session is started when the old one
// had been.
func (p *Provider) SetIdentity(ctx context.Context, identity string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrSessionClosed
	}
	if identity == p.identity {
		p.mu.Unlock()
		return nil
	}
	old, oldTyping := p.session, p.typing
	started := old != nil && old.Status() != StatusIdle
	p.mu.Unlock()

	oldTyping.stop()
	if err := old.Close(); err != nil {
		p.config.logger.Debug("closing previous session", "identity", old.Identity(), "error", err)
	}

	p.mu.Lock()
	p.build(identity)
	p.mu.Unlock()

	if !started || identity == "" {
		return nil
	}
	return p.Start(ctx)
}

// Close tears the session down and drops every change listener.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	s, typing := p.session, p.typing
	p.mu.Unlock()

	typing.stop()
	err := s.Close()
	p.emitter.removeAll()
	return err
}

// Refresh fetches groups, employees and both notification lists
// concurrently. It needs a live connection.
func (p *Provider) Refresh(ctx context.Context) error {
	p.mu.RLock()
	identity := p.identity
	directory, notifications := p.directory, p.notifications
	p.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := directory.RefreshGroups(ctx)
		return err
	})
	g.Go(func() error {
		_, err := directory.RefreshEmployees(ctx)
		return err
	})
	g.Go(func() error {
		_, err := notifications.FetchAll(ctx, identity)
		return err
	})
	g.Go(func() error {
		_, err := notifications.FetchUnread(ctx, identity)
		return err
	})
	return g.Wait()
}

func (p *Provider) refreshAfterConnect(s *Session) {
	if p.Session() != s {
		return
	}
	if err := p.Refresh(context.Background()); err != nil {
		p.config.logger.Warn("refresh after connect failed", "identity", s.Identity(), "error", err)
	}
}

func (p *Provider) resyncGroups(d *Directory) {
	if !d.session.IsConnected() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.config.requestTimeout)
	defer cancel()
	if _, err := d.RefreshGroups(ctx); err != nil {
		d.logger.Debug("group resync failed", "error", err)
	}
}

// ============================================================================
// Accessors
// ============================================================================

// OnChange registers h to observe every store change.
func (p *Provider) OnChange(h ChangeHandler) { p.emitter.OnChange(h) }

func (p *Provider) Identity() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

// Session returns the current session, nil when identity is empty.
func (p *Provider) Session() *Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

func (p *Provider) Status() Status { return p.Session().Status() }

func (p *Provider) IsConnected() bool { return p.Session().IsConnected() }

// WaitConnected blocks until the current session is connected.
func (p *Provider) WaitConnected(ctx context.Context) error {
	return p.Session().WaitConnected(ctx)
}

func (p *Provider) Presence() *Presence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.presence
}

func (p *Provider) Directory() *Directory {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.directory
}

func (p *Provider) Conversations() *Conversations {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conversations
}

func (p *Provider) Notifications() *Notifications {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.notifications
}

func (p *Provider) Groups() *Groups {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.groups
}

func (p *Provider) Typing() *Typing {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.typing
}
