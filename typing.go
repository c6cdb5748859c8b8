package portal

import (
	"sort"
	"sync"
	"time"

	"github.com/hrportal/portal/sdk/golang/internal/clock"
)

// DefaultTypingWindow is how long a typing flag stays set.
const DefaultTypingWindow = 2 * time.Second

// Typing tracks who is typing where. Every typing event sets the flag
// for (user, room) and arms its own expiry timer; a later event does
// not postpone an earlier timer, so the flag clears one window after
// the first event that armed a still-running timer.
type Typing struct {
	self    string
	session *Session
	clock   clock.Clock
	window  time.Duration
	notify  notifier

	mu     sync.Mutex
	active map[typingKey]struct{}
	timers map[*typingTimer]struct{}
}

type typingKey struct {
	user string
	room string
}

type typingTimer struct {
	key   typingKey
	timer clock.Timer
}

type typingEvent struct {
	UserID    string `json:"userId"`
	Recipient string `json:"recipient,omitempty"`
	RoomID    string `json:"roomId,omitempty"`
}

func newTyping(self string, s *Session, clk clock.Clock, window time.Duration, notify notifier) *Typing {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &Typing{
		self:    self,
		session: s,
		clock:   clk,
		window:  window,
		notify:  notify,
		active:  make(map[typingKey]struct{}),
		timers:  make(map[*typingTimer]struct{}),
	}
}

func (t *Typing) attach(s *Session) {
	s.On(EventTyping, t.handleTyping)
}

// Notify tells recipient, or everyone in roomID, that the current user
// is typing. It is fire-and-forget.
func (t *Typing) Notify(recipient, roomID string) error {
	return t.session.Emit(EventTyping, typingEvent{UserID: t.self, Recipient: recipient, RoomID: roomID})
}

func (t *Typing) handleTyping(p Payload) {
	var ev struct {
		UserID any `json:"userId"`
		RoomID any `json:"roomId"`
	}
	if err := p.Decode(&ev); err != nil {
		return
	}
	user := idString(ev.UserID)
	if user == "" || user == t.self {
		return
	}
	t.mark(typingKey{user: user, room: idString(ev.RoomID)})
}

func (t *Typing) mark(key typingKey) {
	entry := &typingTimer{key: key}
	t.mu.Lock()
	_, was := t.active[key]
	t.active[key] = struct{}{}
	t.timers[entry] = struct{}{}
	t.mu.Unlock()

	timer := t.clock.AfterFunc(t.window, func() { t.expire(entry) })
	t.mu.Lock()
	entry.timer = timer
	t.mu.Unlock()

	if !was {
		t.notify.changed(StoreTyping, key.room)
	}
}

func (t *Typing) expire(entry *typingTimer) {
	t.mu.Lock()
	if _, live := t.timers[entry]; !live {
		t.mu.Unlock()
		return
	}
	delete(t.timers, entry)
	_, was := t.active[entry.key]
	delete(t.active, entry.key)
	t.mu.Unlock()

	if was {
		t.notify.changed(StoreTyping, entry.key.room)
	}
}

// IsTyping reports whether userID is typing in roomID. An empty roomID
// means the direct conversation with the current user.
func (t *Typing) IsTyping(userID, roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[typingKey{user: userID, room: roomID}]
	return ok
}

// InRoom returns the users typing in roomID, sorted.
func (t *Typing) InRoom(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var users []string
	for k := range t.active {
		if k.room == roomID {
			users = append(users, k.user)
		}
	}
	sort.Strings(users)
	return users
}

func (t *Typing) stop() {
	t.mu.Lock()
	var timers []clock.Timer
	for entry := range t.timers {
		if entry.timer != nil {
			timers = append(timers, entry.timer)
		}
	}
	t.timers = make(map[*typingTimer]struct{})
	t.active = make(map[typingKey]struct{})
	t.mu.Unlock()
	for _, timer := range timers {
		timer.Stop()
	}
}
