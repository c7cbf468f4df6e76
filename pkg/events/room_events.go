package events

import (
	"context"
	"time"
)

const (
	SessionStarted   = "SESSION_STARTED"
	SessionFinished  = "SESSION_FINISHED"
	ThumbnailUpdated = "THUMBNAIL_UPDATED"
)

// Event is a room lifecycle change fanned out to every backend instance.
type Event interface {
	EventType() string
	RoomID() int64
	Payload() map[string]interface{}
	Timestamp() time.Time
}

// Publisher is satisfied by the NATS publisher. Services treat a nil
// Publisher as "events disabled".
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type RoomEvent struct {
	Type       string
	Room       int64
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e RoomEvent) EventType() string    { return e.Type }
func (e RoomEvent) RoomID() int64        { return e.Room }
func (e RoomEvent) Timestamp() time.Time { return e.OccurredAt }

// Payload always carries room_id so consumers outside Go can route on it.
func (e RoomEvent) Payload() map[string]interface{} {
	out := make(map[string]interface{}, len(e.Data)+1)
	for k, v := range e.Data {
		out[k] = v
	}
	out["room_id"] = e.Room
	return out
}

// FromPayload rebuilds an event from its wire form. Numbers arrive as
// float64 after a JSON round trip.
func FromPayload(eventType string, payload map[string]interface{}) RoomEvent {
	e := RoomEvent{Type: eventType, Data: payload, OccurredAt: time.Now()}
	if id, ok := payload["room_id"].(float64); ok {
		e.Room = int64(id)
	}
	if raw, ok := payload["occurred_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			e.OccurredAt = t
		}
	}
	return e
}

func NewSessionStarted(roomId int64, startAt time.Time) RoomEvent {
	return RoomEvent{
		Type:       SessionStarted,
		Room:       roomId,
		Data:       map[string]interface{}{"session_start_at": startAt},
		OccurredAt: startAt,
	}
}

func NewSessionFinished(roomId int64, imageUrl string, endedAt time.Time, kind string) RoomEvent {
	return RoomEvent{
		Type: SessionFinished,
		Room: roomId,
		Data: map[string]interface{}{
			"last_session_image_url": imageUrl,
			"last_session_ended_at":  endedAt,
			"finish_kind":            kind,
		},
		OccurredAt: endedAt,
	}
}

func NewThumbnailUpdated(roomId int64, url string, at time.Time) RoomEvent {
	return RoomEvent{
		Type:       ThumbnailUpdated,
		Room:       roomId,
		Data:       map[string]interface{}{"thumbnail_url": url},
		OccurredAt: at,
	}
}
