package portal

import (
	"errors"
	"net/http"
	"strconv"
	"time"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrNotConnected is returned by every operation that needs a live
	// connection when none is available. Requests fail fast with it
	// instead of queueing.
	ErrNotConnected = errors.New("socket not connected")

	// ErrSessionClosed rejects requests still waiting when the session
	// is torn down.
	ErrSessionClosed = errors.New("session closed")

	// ErrEmptyIdentity is returned when a provider is started without a
	// current user.
	ErrEmptyIdentity = errors.New("identity is empty")

	// ErrInvalidMessage rejects sends missing sender, recipient or room.
	ErrInvalidMessage = errors.New("invalid message data")

	// ErrInvalidGroup rejects group operations missing a name, group id
	// or members.
	ErrInvalidGroup = errors.New("invalid group data")

	// ErrInvalidNotification rejects notification requests without a
	// recipient or with an unknown type.
	ErrInvalidNotification = errors.New("invalid notification data")

	// ErrNotGroupCreator rejects membership changes and deletes made by
	// anyone other than the group's creator. The server enforces the
	// same rule; this only saves the round trip.
	ErrNotGroupCreator = errors.New("only the group creator can do this")
)

// APIError represents a failed HTTP call against the portal API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func newHTTPError(status int, body []byte) *APIError {
	msg := string(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Code: "HTTP_" + strconv.Itoa(status), Message: msg}
}

// ServerError is a failure the server reported in an acknowledgement.
type ServerError struct {
	// Op is the request event that failed.
	Op string
	// Message is the server-supplied reason, empty if none was given.
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if msg, ok := defaultErrors[e.Op]; ok {
		return msg
	}
	return e.Op + " failed"
}

var defaultErrors = map[string]string{
	EventCreateGroup:             "failed to create group",
	EventAddGroupMembers:         "failed to add members",
	EventRemoveGroupMember:       "failed to remove member",
	EventDeleteGroup:             "failed to delete group",
	EventPrivateMessage:          "failed to send message",
	EventRoomMessage:             "failed to send message",
	EventMarkNotificationsAsRead: "failed to mark notifications as read",
	EventSendNotification:        "failed to send notification",
	EventGetUserNotifications:    "failed to fetch notifications",
	EventGetUnreadNotifications:  "failed to fetch unread notifications",
	EventRequestUserGroups:       "failed to fetch groups",
	EventRequestEmployees:        "failed to fetch employees",
	EventLeaveRequestApplied:     "failed to announce leave request",
	EventLeaveStatusUpdate:       "failed to announce leave status",
	EventMeetingScheduled:        "failed to announce meeting",
	EventMeetingUpdated:          "failed to announce meeting update",
}

// ============================================================================
// Connection
// ============================================================================

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// ============================================================================
// Messages
// ============================================================================

// Sender identifies the author of a message.
type Sender struct {
	ID     string `json:"_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// MediaKind is the kind of attachment carried by a message.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Media describes an attachment.
type Media struct {
	URL  string    `json:"url"`
	Type MediaKind `json:"type"`
}

// Message is the canonical in-memory chat message. Exactly one of
// Recipient and RoomID is set: Recipient for direct conversations,
// RoomID for group conversations. ID is empty until the server assigns
// one.
type Message struct {
	ID        string    `json:"_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Sender    Sender    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
	Media     *Media    `json:"media,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsRoom reports whether the message belongs to a group conversation.
func (m Message) IsRoom() bool { return m.RoomID != "" }

// outboundMessage is the send payload. CreatedAt is left to the server.
type outboundMessage struct {
	Sender    Sender `json:"sender"`
	Recipient string `json:"recipient,omitempty"`
	RoomID    string `json:"roomId,omitempty"`
	Content   string `json:"content,omitempty"`
	Media     *Media `json:"media,omitempty"`
}

// ============================================================================
// Directory
// ============================================================================

// Employee is an addressable user in the directory.
type Employee struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
	Online     bool   `json:"online"`
}

// Group is a chat group. Members holds unique ids; Creator, when set,
// is always among them. Legacy groups may have no creator.
type Group struct {
	ID      string   `json:"_id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Creator string   `json:"creator,omitempty"`
}

// HasMember reports whether id belongs to the group.
func (g Group) HasMember(id string) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}

// CanManage reports whether userID may change membership or delete the
// group. Groups without a recorded creator are left to the server.
func (g Group) CanManage(userID string) bool {
	return g.Creator == "" || g.Creator == userID
}

// ============================================================================
// Notifications
// ============================================================================

// NotificationType is the closed set of notification kinds.
type NotificationType string

const (
	NotificationMessage          NotificationType = "message"
	NotificationLeaveApproval    NotificationType = "leave_approval"
	NotificationLeaveRejection   NotificationType = "leave_rejection"
	NotificationMeetingScheduled NotificationType = "meeting_scheduled"
	NotificationMeetingUpdated   NotificationType = "meeting_updated"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationMessage, NotificationLeaveApproval, NotificationLeaveRejection,
		NotificationMeetingScheduled, NotificationMeetingUpdated:
		return true
	}
	return false
}

// NotificationMetadata cross-references the entity a notification is
// about.
type NotificationMetadata struct {
	LeaveID   string `json:"leaveId,omitempty"`
	MeetingID string `json:"meetingId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	RoomID    string `json:"roomId,omitempty"`
}

// Notification is a single notification for the current user. Read
// only ever moves from false to true.
type Notification struct {
	ID        string                `json:"_id"`
	Recipient string                `json:"recipient"`
	Sender    string                `json:"sender,omitempty"`
	Type      NotificationType      `json:"type"`
	Content   string                `json:"content"`
	Read      bool                  `json:"read"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
	Metadata  *NotificationMetadata `json:"metadata,omitempty"`
}

// NotificationRequest asks the server to create and push a notification.
type NotificationRequest struct {
	Recipient string                `json:"recipient"`
	Sender    string                `json:"sender,omitempty"`
	Type      NotificationType      `json:"type"`
	Content   string                `json:"content"`
	Metadata  *NotificationMetadata `json:"metadata,omitempty"`
}

// LeaveEvent announces a leave request or a decision on one so the
// server can notify the people involved.
type LeaveEvent struct {
	LeaveID    string    `json:"leaveId"`
	EmployeeID string    `json:"employeeId"`
	ApproverID string    `json:"approverId,omitempty"`
	Status     string    `json:"status,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
}

// MeetingEvent announces a scheduled or changed meeting.
type MeetingEvent struct {
	MeetingID    string    `json:"meetingId"`
	Title        string    `json:"title"`
	OrganizerID  string    `json:"organizerId"`
	Participants []string  `json:"participants"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	Link         string    `json:"link,omitempty"`
}

// ============================================================================
// Profiles
// ============================================================================

// Profile is a user's current display details as served by the HTTP
// profile endpoint.
type Profile struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

func (p Profile) sender() Sender {
	return Sender{ID: p.ID, Name: p.Name, Email: p.Email, Avatar: p.Avatar}
}
