package portal

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Wire shapes. The backend is inconsistent about ids (strings, numbers
// or {"$oid": ...}), timestamps (RFC 3339, epoch milliseconds or
// {"$date": ...}) and nested records (an id or a full object), so those
// fields decode into any and are coerced afterwards.

type wireMessage struct {
	ID        any        `json:"_id,omitempty"`
	AltID     any        `json:"id,omitempty"`
	Content   string     `json:"content,omitempty"`
	Sender    any        `json:"sender,omitempty"`
	Recipient any        `json:"recipient,omitempty"`
	RoomID    any        `json:"roomId,omitempty"`
	Media     *wireMedia `json:"media,omitempty"`
	CreatedAt any        `json:"createdAt,omitempty"`
}

type wireMedia struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type wireGroup struct {
	ID      any    `json:"_id,omitempty"`
	AltID   any    `json:"id,omitempty"`
	Name    string `json:"name"`
	Members []any  `json:"members"`
	Creator any    `json:"creator,omitempty"`
}

type wireEmployee struct {
	ID         any    `json:"_id,omitempty"`
	AltID      any    `json:"id,omitempty"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

type wireNotification struct {
	ID        any            `json:"_id,omitempty"`
	AltID     any            `json:"id,omitempty"`
	Recipient any            `json:"recipient,omitempty"`
	Sender    any            `json:"sender,omitempty"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Read      bool           `json:"read"`
	CreatedAt any            `json:"createdAt,omitempty"`
	UpdatedAt any            `json:"updatedAt,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ============================================================================
// Coercion
// ============================================================================

// idString coerces an id of any wire shape to its string form.
func idString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case map[string]any:
		for _, k := range []string{"$oid", "_id", "id"} {
			if s := idString(x[k]); s != "" {
				return s
			}
		}
		return ""
	}
	return fmt.Sprint(v)
}

// idList coerces a list of ids, dropping empties and duplicates while
// keeping first-seen order.
func idList(vs []any) []string {
	out := make([]string, 0, len(vs))
	seen := make(map[string]struct{}, len(vs))
	for _, v := range vs {
		id := idString(v)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// timeValue coerces a timestamp of any wire shape. Bare numbers are
// epoch milliseconds. Unparseable values yield the zero time.
func timeValue(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x.UTC()
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t.UTC()
			}
		}
		if ms, err := strconv.ParseInt(x, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	case float64:
		return time.UnixMilli(int64(x)).UTC()
	case int64:
		return time.UnixMilli(x).UTC()
	case uint64:
		return time.UnixMilli(int64(x)).UTC()
	case json.Number:
		if ms, err := x.Int64(); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	case map[string]any:
		return timeValue(x["$date"])
	}
	return time.Time{}
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return idString(m[key])
}

// senderValue accepts a bare id or a sender object.
func senderValue(v any) Sender {
	obj, ok := v.(map[string]any)
	if !ok {
		return Sender{ID: idString(v)}
	}
	id := idString(obj["_id"])
	if id == "" {
		id = idString(obj["id"])
	}
	return Sender{
		ID:     id,
		Name:   stringField(obj, "name"),
		Email:  stringField(obj, "email"),
		Avatar: stringField(obj, "avatar"),
	}
}

// ============================================================================
// Normalization
// ============================================================================

// normalizeMessage converts a wire message to canonical form. now is
// used when the server sent no usable timestamp.
func normalizeMessage(w wireMessage, now time.Time) Message {
	m := Message{
		ID:        idString(w.ID),
		Content:   w.Content,
		Sender:    senderValue(w.Sender),
		Recipient: idString(w.Recipient),
		RoomID:    idString(w.RoomID),
		CreatedAt: timeValue(w.CreatedAt),
	}
	if m.ID == "" {
		m.ID = idString(w.AltID)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now.UTC()
	}
	if w.Media != nil && w.Media.URL != "" {
		m.Media = &Media{URL: w.Media.URL, Type: MediaKind(w.Media.Type)}
	}
	return m
}

// normalizeGroup converts a wire group, folding the creator into the
// member set.
func normalizeGroup(w wireGroup) Group {
	g := Group{
		ID:      idString(w.ID),
		Name:    w.Name,
		Members: idList(w.Members),
		Creator: idString(w.Creator),
	}
	if g.ID == "" {
		g.ID = idString(w.AltID)
	}
	if g.Creator != "" && !g.HasMember(g.Creator) {
		g.Members = append(g.Members, g.Creator)
	}
	return g
}

func normalizeEmployee(w wireEmployee) Employee {
	e := Employee{
		ID:         idString(w.ID),
		Name:       w.Name,
		Email:      w.Email,
		Avatar:     w.Avatar,
		Role:       w.Role,
		Department: w.Department,
	}
	if e.ID == "" {
		e.ID = idString(w.AltID)
	}
	return e
}

func normalizeNotification(w wireNotification) Notification {
	n := Notification{
		ID:        idString(w.ID),
		Recipient: idString(w.Recipient),
		Sender:    idString(w.Sender),
		Type:      NotificationType(w.Type),
		Content:   w.Content,
		Read:      w.Read,
		CreatedAt: timeValue(w.CreatedAt),
		UpdatedAt: timeValue(w.UpdatedAt),
	}
	if n.ID == "" {
		n.ID = idString(w.AltID)
	}
	if len(w.Metadata) > 0 {
		n.Metadata = &NotificationMetadata{
			LeaveID:   idString(w.Metadata["leaveId"]),
			MeetingID: idString(w.Metadata["meetingId"]),
			MessageID: idString(w.Metadata["messageId"]),
			RoomID:    idString(w.Metadata["roomId"]),
		}
	}
	return n
}

// ============================================================================
// Conversation keys
// ============================================================================

// DirectKey is the conversation key of a two-party thread. It is the
// same whichever participant is passed first.
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

// ConversationKey returns the thread a message belongs to: its room id
// for group messages, otherwise the direct key of sender and recipient.
func ConversationKey(m Message) string {
	if m.RoomID != "" {
		return m.RoomID
	}
	return DirectKey(m.Sender.ID, m.Recipient)
}
