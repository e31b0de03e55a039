package models

import "encoding/json"

// Real-time channel event names. Consumed events arrive from clients,
// produced events are emitted by the server; chat and signal names are shared
// by both directions.
const (
	// consumed
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventStreamStart = "stream:start"
	EventStreamStop  = "stream:stop"
	EventRoomRefresh = "room:refresh"
	EventCloseRoom   = "room:close"

	// both directions
	EventChatMessage  = "chat:message"
	EventChatReaction = "chat:reaction"
	EventStreamAction = "stream:action"
	EventSignal       = "signal"

	// produced
	EventUserJoined    = "user:joined"
	EventUserLeft      = "user:left"
	EventRoomSync      = "room:sync"
	EventStreamStarted = "stream:started"
	EventStreamStopped = "stream:stopped"
	EventRoomClosed    = "room:closed"
	EventError         = "error"
)

// Event is the framing for every real-time channel message
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an Event frame
func NewEvent(eventType string, payload interface{}) (Event, error) {
	if payload == nil {
		return Event{Type: eventType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: data}, nil
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	User   User   `json:"user"`
}

type UserJoinedPayload struct {
	UserID     string `json:"userId"`
	TotalUsers int    `json:"totalUsers"`
}

type UserLeftPayload struct {
	UserID     string `json:"userId"`
	TotalUsers int    `json:"totalUsers"`
}

// RoomSyncPayload is the late-joiner reconciliation snapshot, sent to the
// joining connection only, exactly once per join.
type RoomSyncPayload struct {
	HostID    string        `json:"hostId"`
	Streaming bool          `json:"streaming"`
	Users     []User        `json:"users"`
	Messages  []ChatMessage `json:"messages"`
}

type StreamStartedPayload struct {
	HostID string `json:"hostId"`
}

type ChatReactionPayload struct {
	MsgID  string `json:"msgId"`
	Emoji  string `json:"emoji"`
	UserID string `json:"userId"`
}

type RoomClosedPayload struct {
	Reason string `json:"reason,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
