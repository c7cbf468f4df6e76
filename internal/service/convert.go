package service

import (
	"time"

	"paintroom-be/internal/dto"
	"paintroom-be/internal/entity"
	"paintroom-be/pkg/canvas"
	"paintroom-be/pkg/roster"
)

func toRoomResponse(room *entity.Room, limit time.Duration) *dto.RoomResponse {
	res := &dto.RoomResponse{
		Id:                  room.Id,
		Name:                room.Name,
		IsActive:            room.IsActive,
		SessionStartAt:      room.SessionStartAt,
		LastSessionImageUrl: room.LastSessionImageUrl,
		LastSessionEndedAt:  room.LastSessionEndedAt,
		ThumbnailUrl:        room.ThumbnailUrl,
		ThumbnailUpdatedAt:  room.ThumbnailUpdatedAt,
	}
	if room.IsActive && room.SessionStartAt != nil {
		ends := room.SessionStartAt.Add(limit)
		res.SessionEndsAt = &ends
	}
	return res
}

func toStrokeResponse(s *entity.Stroke) *dto.StrokeResponse {
	return &dto.StrokeResponse{
		Seq:       s.Seq,
		Id:        s.Id,
		Points:    s.Points,
		Color:     s.Color,
		Width:     s.Width,
		Tool:      s.Tool,
		LayerId:   s.LayerId,
		UserId:    s.UserId,
		UserName:  s.UserName,
		CreatedAt: s.CreatedAt,
	}
}

func toCanvasStroke(s *entity.Stroke) canvas.Stroke {
	return canvas.Stroke{
		ID:      s.Id,
		Points:  s.Points,
		Color:   s.Color,
		Width:   s.Width,
		Tool:    s.Tool,
		LayerID: s.LayerId,
	}
}

func toRosterMembers(entries []entity.Presence) []roster.Member {
	members := make([]roster.Member, 0, len(entries))
	for _, p := range entries {
		members = append(members, roster.Member{Id: p.UserId, Name: p.Name, JoinedAt: p.JoinedAt})
	}
	return roster.Dedupe(members)
}
