package portal

import (
	"sort"
	"sync"
)

// Presence is the set of users currently online. The server pushes the
// whole set on every change and each push replaces it.
type Presence struct {
	notify notifier

	mu     sync.RWMutex
	online map[string]struct{}
}

func newPresence(notify notifier) *Presence {
	return &Presence{notify: notify, online: map[string]struct{}{}}
}

func (p *Presence) attach(s *Session) {
	s.On(EventOnlineUsers, p.handleOnlineUsers)
}

func (p *Presence) handleOnlineUsers(pl Payload) {
	var ids []any
	if err := pl.Decode(&ids); err != nil {
		return
	}
	next := make(map[string]struct{}, len(ids))
	for _, id := range idList(ids) {
		next[id] = struct{}{}
	}

	p.mu.Lock()
	p.online = next
	p.mu.Unlock()
	p.notify.changed(StorePresence, "")
}

// IsOnline reports whether userID is connected.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// Online returns the online user ids in sorted order.
func (p *Presence) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns how many users are online.
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.online)
}
