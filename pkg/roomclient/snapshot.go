package roomclient

import (
	"time"

	"paintroom-be/internal/dto"
	"paintroom-be/pkg/canvas"
	"paintroom-be/pkg/roster"
)

// Snapshot is a read-only view of a session. Every field is a copy; holding a
// Snapshot never races with the event loop.
type Snapshot struct {
	Room      dto.RoomResponse
	Strokes   []dto.StrokeResponse
	Chat      []dto.ChatMessage
	Roster    []roster.Member
	Leader    string
	Connected bool
	Drawing   bool
}

// Elapsed is the running time of the current session, zero when idle.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	if !s.Room.IsActive || s.Room.SessionStartAt == nil {
		return 0
	}
	if d := now.Sub(*s.Room.SessionStartAt); d > 0 {
		return d
	}
	return 0
}

// CanvasStrokes converts the log to the rasterizer's model.
func (s Snapshot) CanvasStrokes() []canvas.Stroke {
	return toCanvas(s.Strokes)
}

// ElectLeader de-duplicates the roster and picks the thumbnail leader. Every
// client holding the same roster elects the same user.
func ElectLeader(members []roster.Member) (string, bool) {
	return roster.ElectLeader(roster.Dedupe(members))
}

func toCanvas(strokes []dto.StrokeResponse) []canvas.Stroke {
	out := make([]canvas.Stroke, 0, len(strokes))
	for _, s := range strokes {
		out = append(out, canvas.Stroke{
			ID:      s.Id,
			Points:  s.Points,
			Color:   s.Color,
			Width:   s.Width,
			Tool:    s.Tool,
			LayerID: s.LayerId,
		})
	}
	return out
}

func copyRoom(r dto.RoomResponse) dto.RoomResponse {
	r.SessionStartAt = copyTime(r.SessionStartAt)
	r.SessionEndsAt = copyTime(r.SessionEndsAt)
	r.LastSessionEndedAt = copyTime(r.LastSessionEndedAt)
	r.ThumbnailUpdatedAt = copyTime(r.ThumbnailUpdatedAt)
	r.LastSessionImageUrl = copyString(r.LastSessionImageUrl)
	r.ThumbnailUrl = copyString(r.ThumbnailUrl)
	return r
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// copyStrokes copies the slice only. Stroke points are never modified after a
// stroke enters the log, so sharing them is safe.
func copyStrokes(in []dto.StrokeResponse) []dto.StrokeResponse {
	return append([]dto.StrokeResponse(nil), in...)
}
