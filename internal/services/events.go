package services

// Inbound real-time events.
const (
	EventJoinRoom      = "join:room"
	EventLeaveRoom     = "leave:room"
	EventMessageSend   = "message:send"
	EventMessageDelete = "message:delete"
	EventUsersList     = "users:list"
	EventTypingStart   = "typing:start"
	EventTypingStop    = "typing:stop"
)

// Outbound real-time events.
const (
	EventRoomJoined      = "room:joined"
	EventUserJoined      = "user:joined"
	EventUserLeft        = "user:left"
	EventMessageReceived = "message:received"
	EventMessageSent     = "message:sent"
	EventMessageDeleted  = "message:deleted"
	EventMessageFlagged  = "message:flagged"
	EventUsersConnected  = "users:connected"
	EventTypingActive    = "typing:active"
	EventTypingStopped   = "typing:stopped"
	EventError           = "error"
)

// Transport delivers events to live connections and named groups. The
// websocket hub is the production implementation.
type Transport interface {
	Join(connID, group string)
	Leave(connID, group string)
	SendTo(connID, event string, payload interface{})
	Broadcast(group, event string, payload interface{}, exceptConnID string)
	IsConnected(connID string) bool
}
