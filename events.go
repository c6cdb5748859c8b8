package portal

// Lifecycle events raised by the Socket itself.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

// Client to server events.
const (
	EventRegister                = "register"
	EventRequestUserGroups       = "requestUserGroups"
	EventCreateGroup             = "createGroup"
	EventAddGroupMembers         = "addGroupMembers"
	EventRemoveGroupMember       = "removeGroupMember"
	EventDeleteGroup             = "deleteGroup"
	EventRequestEmployees        = "requestEmployees"
	EventFetchPrivateMessages    = "fetchPrivateMessages"
	EventFetchRoomMessages       = "fetchRoomMessages"
	EventPrivateMessage          = "privateMessage"
	EventRoomMessage             = "roomMessage"
	EventGetUserNotifications    = "getUserNotifications"
	EventGetUnreadNotifications  = "getUnreadNotifications"
	EventSendNotification        = "sendNotification"
	EventMarkNotificationsAsRead = "markNotificationsAsRead"
	EventLeaveRequestApplied     = "leaveRequestApplied"
	EventLeaveStatusUpdate       = "leaveStatusUpdate"
	EventMeetingScheduled        = "meetingScheduled"
	EventMeetingUpdated          = "meetingUpdated"
)

// Server pushes.
const (
	EventOnlineUsers         = "onlineUsers"
	EventEmployeeList        = "employeeList"
	EventUserGroups          = "userGroups"
	EventGroupCreated        = "groupCreated"
	EventAddedToGroup        = "addedToGroup"
	EventGroupMembersUpdated = "groupMembersUpdated"
	EventRemovedFromGroup    = "removedFromGroup"
	EventGroupDeleted        = "groupDeleted"
	EventNewPrivateMessage   = "newPrivateMessage"
	EventNewRoomMessage      = "newRoomMessage"
	EventNewNotification     = "newNotification"
	EventNotificationsRead   = "notificationsRead"
)

// EventTyping travels both ways: the client emits it without an
// acknowledgement and the server relays it to the other party.
const EventTyping = "typing"

// eventAck is the envelope event carrying an acknowledgement reply.
const eventAck = "ack"
