package portal

import (
	"context"
	"log/slog"
	"sync"
)

// Notifications holds the current user's full notification list and its
// unread subset. The two lists are fetched independently; read-marking
// flips flags in the full list and removes entries from the unread one.
type Notifications struct {
	session *Session
	notify  notifier
	logger  *slog.Logger

	mu     sync.RWMutex
	all    []Notification
	unread []Notification
}

type userRequest struct {
	UserID string `json:"userId"`
}

type markReadRequest struct {
	UserID          string   `json:"userId"`
	NotificationIDs []string `json:"notificationIds"`
}

type readBroadcast struct {
	NotificationIDs []any `json:"notificationIds"`
}

func (n *Notifications) attach(s *Session) {
	s.On(EventNewNotification, n.handleNew)
	s.On(EventNotificationsRead, n.handleRead)
}

// ============================================================================
// Fetches
// ============================================================================

// FetchAll replaces the full list with the server's.
func (n *Notifications) FetchAll(ctx context.Context, userID string) ([]Notification, error) {
	list, err := n.fetch(ctx, EventGetUserNotifications, userID)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.all = list
	n.mu.Unlock()
	n.notify.changed(StoreNotifications, "all")
	return list, nil
}

// FetchUnread replaces the unread list with the server's.
func (n *Notifications) FetchUnread(ctx context.Context, userID string) ([]Notification, error) {
	list, err := n.fetch(ctx, EventGetUnreadNotifications, userID)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.unread = list
	n.mu.Unlock()
	n.notify.changed(StoreNotifications, "unread")
	return list, nil
}

func (n *Notifications) fetch(ctx context.Context, event, userID string) ([]Notification, error) {
	wire, err := RequestField[[]wireNotification](ctx, n.session, event,
		userRequest{UserID: userID}, "notifications")
	if err != nil {
		return nil, err
	}
	list := make([]Notification, 0, len(wire))
	for _, w := range wire {
		list = append(list, normalizeNotification(w))
	}
	return list, nil
}

// ============================================================================
// Read state
// ============================================================================

// MarkRead marks ids read on the server and, once acknowledged,
// locally. Marking an already-read id again changes nothing. An empty
// ids list makes no request.
func (n *Notifications) MarkRead(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := n.session.callStatus(ctx, EventMarkNotificationsAsRead,
		markReadRequest{UserID: userID, NotificationIDs: ids})
	if err != nil {
		return err
	}
	n.applyRead(ids)
	return nil
}

func (n *Notifications) applyRead(ids []string) {
	marked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		marked[id] = struct{}{}
	}

	n.mu.Lock()
	all := make([]Notification, len(n.all))
	for i, item := range n.all {
		if _, ok := marked[item.ID]; ok {
			item.Read = true
		}
		all[i] = item
	}
	unread := make([]Notification, 0, len(n.unread))
	for _, item := range n.unread {
		if _, ok := marked[item.ID]; !ok {
			unread = append(unread, item)
		}
	}
	n.all = all
	n.unread = unread
	n.mu.Unlock()

	n.notify.changed(StoreNotifications, "read")
}

// ============================================================================
// Pushes
// ============================================================================

func (n *Notifications) handleNew(p Payload) {
	if f, ok := p.Field("notification"); ok {
		p = f
	}
	var w wireNotification
	if err := p.Decode(&w); err != nil {
		n.logger.Debug("ignoring malformed notification push", "error", err)
		return
	}
	item := normalizeNotification(w)

	n.mu.Lock()
	n.all = prepend(n.all, item)
	if !item.Read {
		n.unread = prepend(n.unread, item)
	}
	n.mu.Unlock()

	n.notify.changed(StoreNotifications, item.ID)
}

func (n *Notifications) handleRead(p Payload) {
	var ids []any
	if f, ok := p.Field("notificationIds"); ok {
		if err := f.Decode(&ids); err != nil {
			return
		}
	} else if err := p.Decode(&ids); err != nil {
		return
	}
	if list := idList(ids); len(list) > 0 {
		n.applyRead(list)
	}
}

func prepend(list []Notification, item Notification) []Notification {
	out := make([]Notification, 0, len(list)+1)
	out = append(out, item)
	return append(out, list...)
}

// ============================================================================
// Reads
// ============================================================================

// All returns the full list, newest pushes first.
func (n *Notifications) All() []Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.all
}

// Unread returns the unread subset.
func (n *Notifications) Unread() []Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.unread
}

// UnreadCount returns len(Unread()).
func (n *Notifications) UnreadCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.unread)
}

// ============================================================================
// Server fan-out triggers
// ============================================================================

// SendNotification asks the server to create a notification and push it
// to its recipient.
func (n *Notifications) SendNotification(ctx context.Context, req NotificationRequest) (Notification, error) {
	if req.Recipient == "" || !req.Type.Valid() {
		return Notification{}, ErrInvalidNotification
	}
	w, err := RequestField[*wireNotification](ctx, n.session, EventSendNotification, req, "notification")
	if err != nil {
		return Notification{}, err
	}
	if w == nil {
		return Notification{Recipient: req.Recipient, Sender: req.Sender, Type: req.Type,
			Content: req.Content, Metadata: req.Metadata}, nil
	}
	return normalizeNotification(*w), nil
}

// LeaveRequestApplied tells the server a leave request was filed so the
// approvers are notified.
func (n *Notifications) LeaveRequestApplied(ctx context.Context, e LeaveEvent) error {
	return n.session.callStatus(ctx, EventLeaveRequestApplied, e)
}

// LeaveStatusUpdate tells the server a leave request was decided.
func (n *Notifications) LeaveStatusUpdate(ctx context.Context, e LeaveEvent) error {
	return n.session.callStatus(ctx, EventLeaveStatusUpdate, e)
}

// MeetingScheduled tells the server a meeting was scheduled.
func (n *Notifications) MeetingScheduled(ctx context.Context, e MeetingEvent) error {
	return n.session.callStatus(ctx, EventMeetingScheduled, e)
}

// MeetingUpdated tells the server a meeting changed.
func (n *Notifications) MeetingUpdated(ctx context.Context, e MeetingEvent) error {
	return n.session.callStatus(ctx, EventMeetingUpdated, e)
}
