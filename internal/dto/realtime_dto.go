package dto

import (
	"encoding/json"
	"time"
)

// Realtime event types. The same names are used on the WebSocket wire.
const (
	EventStrokeInserted = "stroke.inserted"
	EventStrokesCleared = "strokes.cleared"
	EventRoomUpdated    = "room.updated"
	EventChatMessage    = "chat.message"
	EventPresenceJoin   = "presence.join"
	EventPresenceLeave  = "presence.leave"
	EventPresenceSync   = "presence.sync"
	EventStrokeAck      = "stroke.ack"
	EventError          = "error"

	InboundStrokeSubmit = "stroke.submit"
	InboundChatSend     = "chat.send"
	InboundHeartbeat    = "presence.heartbeat"
)

// RoomChange travels on the in-process change feed after a commit.
type RoomChange struct {
	Type   string          `json:"type"`
	RoomId int64           `json:"room_id"`
	Stroke *StrokeResponse `json:"stroke,omitempty"`
	Room   *RoomResponse   `json:"room,omitempty"`
}

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ChatSendRequest struct {
	Text string `json:"text"`
}

type ChatMessage struct {
	UserId    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type PresenceMember struct {
	Id       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

type PresenceSync struct {
	Members []PresenceMember `json:"members"`
}

type StrokeAck struct {
	Id  string `json:"id"`
	Seq int64  `json:"seq"`
}

type ErrorFrame struct {
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}
