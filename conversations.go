package portal

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hrportal/portal/sdk/golang/internal/clock"
)

// ProfileLookup resolves a user's current display details. Pushed
// messages carry only a sender reference, so the store consults it
// before storing them.
type ProfileLookup interface {
	Profile(ctx context.Context, userID string) (Profile, error)
}

// Conversations holds message history per conversation key. Each
// thread is kept in arrival order. Every change installs a new slice
// for the affected key and a new map; slices of other keys are shared
// untouched.
type Conversations struct {
	session       *Session
	clock         clock.Clock
	profiles      ProfileLookup
	lookupTimeout time.Duration
	notify        notifier
	logger        *slog.Logger

	mu      sync.RWMutex
	threads map[string][]Message
}

type directHistoryRequest struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

type roomHistoryRequest struct {
	RoomID string `json:"roomId"`
}

func (c *Conversations) attach(s *Session) {
	s.On(EventNewPrivateMessage, c.handlePush)
	s.On(EventNewRoomMessage, c.handlePush)
}

// ============================================================================
// History
// ============================================================================

// FetchDirect loads the direct history between selfID and counterpartID
// and replaces whatever was stored under their key.
func (c *Conversations) FetchDirect(ctx context.Context, selfID, counterpartID string) ([]Message, error) {
	wire, err := RequestField[[]wireMessage](ctx, c.session, EventFetchPrivateMessages,
		directHistoryRequest{UserID: selfID, OtherUserID: counterpartID}, "messages")
	if err != nil {
		return nil, err
	}
	key := DirectKey(selfID, counterpartID)
	return c.replace(key, wire), nil
}

// FetchRoom loads a group's history and replaces the stored thread.
func (c *Conversations) FetchRoom(ctx context.Context, roomID string) ([]Message, error) {
	wire, err := RequestField[[]wireMessage](ctx, c.session, EventFetchRoomMessages,
		roomHistoryRequest{RoomID: roomID}, "messages")
	if err != nil {
		return nil, err
	}
	return c.replace(roomID, wire), nil
}

func (c *Conversations) replace(key string, wire []wireMessage) []Message {
	now := c.clock.Now()
	thread := make([]Message, 0, len(wire))
	for _, w := range wire {
		thread = append(thread, normalizeMessage(w, now))
	}

	c.mu.Lock()
	next := make(map[string][]Message, len(c.threads)+1)
	for k, v := range c.threads {
		next[k] = v
	}
	next[key] = thread
	c.threads = next
	c.mu.Unlock()

	c.notify.changed(StoreConversations, key)
	return thread
}

// ============================================================================
// Sends
// ============================================================================

// SendDirect sends a direct message. Sender and recipient are required.
// The server's copy of the message is appended once acknowledged.
func (c *Conversations) SendDirect(ctx context.Context, m Message) (Message, error) {
	if m.Sender.ID == "" || m.Recipient == "" {
		return Message{}, ErrInvalidMessage
	}
	m.RoomID = ""
	return c.send(ctx, EventPrivateMessage, m)
}

// SendRoom sends a message to a group. Sender and room are required.
func (c *Conversations) SendRoom(ctx context.Context, m Message) (Message, error) {
	if m.Sender.ID == "" || m.RoomID == "" {
		return Message{}, ErrInvalidMessage
	}
	m.Recipient = ""
	return c.send(ctx, EventRoomMessage, m)
}

func (c *Conversations) send(ctx context.Context, event string, m Message) (Message, error) {
	out := outboundMessage{
		Sender:    m.Sender,
		Recipient: m.Recipient,
		RoomID:    m.RoomID,
		Content:   m.Content,
		Media:     m.Media,
	}
	wire, err := RequestField[*wireMessage](ctx, c.session, event, out, "message")
	if err != nil {
		return Message{}, err
	}

	var stored Message
	if wire != nil {
		stored = normalizeMessage(*wire, c.clock.Now())
	} else {
		m.CreatedAt = c.clock.Now().UTC()
		stored = m
	}
	// The ack may echo a bare sender id; keep the details we sent.
	if stored.Sender.ID == m.Sender.ID && stored.Sender.Name == "" {
		stored.Sender = m.Sender
	}
	if stored.Recipient == "" && stored.RoomID == "" {
		stored.Recipient, stored.RoomID = m.Recipient, m.RoomID
	}
	c.appendMessage(stored)
	return stored, nil
}

// ============================================================================
// Pushes
// ============================================================================

func (c *Conversations) handlePush(p Payload) {
	if f, ok := p.Field("message"); ok {
		p = f
	}
	var w wireMessage
	if err := p.Decode(&w); err != nil {
		c.logger.Debug("ignoring malformed message push", "error", err)
		return
	}
	m := normalizeMessage(w, c.clock.Now())
	if m.Recipient == "" && m.RoomID == "" {
		c.logger.Debug("ignoring message push without a conversation", "id", m.ID)
		return
	}
	m.Sender = c.resolveSender(m.Sender)
	c.appendMessage(m)
}

// resolveSender fills in the sender's current profile. A failed lookup
// keeps the reference as received.
func (c *Conversations) resolveSender(ref Sender) Sender {
	if c.profiles == nil || ref.ID == "" {
		return ref
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.lookupTimeout)
	defer cancel()
	profile, err := c.profiles.Profile(ctx, ref.ID)
	if err != nil {
		c.logger.Warn("sender profile lookup failed", "sender", ref.ID, "error", err)
		return ref
	}
	resolved := profile.sender()
	resolved.ID = ref.ID
	if resolved.Name == "" {
		resolved.Name = ref.Name
	}
	if resolved.Email == "" {
		resolved.Email = ref.Email
	}
	if resolved.Avatar == "" {
		resolved.Avatar = ref.Avatar
	}
	return resolved
}

func (c *Conversations) appendMessage(m Message) {
	key := ConversationKey(m)

	c.mu.Lock()
	prev := c.threads[key]
	thread := make([]Message, len(prev), len(prev)+1)
	copy(thread, prev)
	thread = append(thread, m)

	next := make(map[string][]Message, len(c.threads)+1)
	for k, v := range c.threads {
		next[k] = v
	}
	next[key] = thread
	c.threads = next
	c.mu.Unlock()

	c.notify.changed(StoreConversations, key)
}

// ============================================================================
// Reads
// ============================================================================

// Messages returns the thread stored under key in arrival order. The
// slice is never modified after it is returned.
func (c *Conversations) Messages(key string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threads[key]
}

// Direct returns the thread between a and b.
func (c *Conversations) Direct(a, b string) []Message {
	return c.Messages(DirectKey(a, b))
}

// Sorted returns a copy of the thread ordered by creation time. Equal
// timestamps keep arrival order.
func (c *Conversations) Sorted(key string) []Message {
	thread := c.Messages(key)
	out := append([]Message(nil), thread...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Snapshot returns the whole key to thread map. Neither the map nor
// its slices are modified afterwards.
func (c *Conversations) Snapshot() map[string][]Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threads
}

// Keys returns the stored conversation keys in sorted order.
func (c *Conversations) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.threads))
	for k := range c.threads {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
