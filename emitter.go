package portal

import (
	"log/slog"
	"sync"
)

// Store names carried by Change.
const (
	StoreStatus        = "status"
	StorePresence      = "presence"
	StoreDirectory     = "directory"
	StoreConversations = "conversations"
	StoreNotifications = "notifications"
	StoreTyping        = "typing"
)

// Change reports that a store replaced its state. Key narrows the
// change where the store has one, such as the conversation key.
type Change struct {
	Store string
	Key   string
}

// ChangeHandler observes store changes.
type ChangeHandler func(Change)

type changeEmitter struct {
	logger *slog.Logger

	mu        sync.RWMutex
	listeners []ChangeHandler
}

func (e *changeEmitter) OnChange(h ChangeHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, h)
}

func (e *changeEmitter) emit(c Change) {
	e.mu.RLock()
	handlers := e.listeners
	e.mu.RUnlock()
	for _, h := range handlers {
		e.call(h, c)
	}
}

// call runs one observer. A panic is logged and contained so the read
// loop and later observers keep running.
func (e *changeEmitter) call(h ChangeHandler, c Change) {
	defer func() {
		if r := recover(); r != nil && e.logger != nil {
			e.logger.Error("change observer panicked", "store", c.Store, "key", c.Key, "panic", r)
		}
	}()
	h(c)
}

func (e *changeEmitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = nil
}

// notifier is how stores publish changes. A nil notifier is a no-op.
type notifier func(Change)

func (n notifier) changed(store, key string) {
	if n != nil {
		n(Change{Store: store, Key: key})
	}
}
