package mapper

import (
	"time"

	"paintroom-be/internal/entity"
	"paintroom-be/internal/model"
)

type RoomMapper struct{}

func NewRoomMapper() *RoomMapper {
	return &RoomMapper{}
}

func (m *RoomMapper) ToEntity(r *model.Room) *entity.Room {
	if r == nil {
		return nil
	}

	var updatedAt *time.Time
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		updatedAt = &t
	}

	return &entity.Room{
		Id:                  r.Id,
		Name:                r.Name,
		IsActive:            r.IsActive,
		SessionStartAt:      r.SessionStartAt,
		LastSessionImageUrl: r.LastSessionImageUrl,
		LastSessionEndedAt:  r.LastSessionEndedAt,
		ThumbnailUrl:        r.ThumbnailUrl,
		ThumbnailUpdatedAt:  r.ThumbnailUpdatedAt,
		UpdatedAt:           updatedAt,
	}
}

func (m *RoomMapper) ToModel(r *entity.Room) *model.Room {
	if r == nil {
		return nil
	}

	var updatedAt time.Time
	if r.UpdatedAt != nil {
		updatedAt = *r.UpdatedAt
	}

	return &model.Room{
		Id:                  r.Id,
		Name:                r.Name,
		IsActive:            r.IsActive,
		SessionStartAt:      r.SessionStartAt,
		LastSessionImageUrl: r.LastSessionImageUrl,
		LastSessionEndedAt:  r.LastSessionEndedAt,
		ThumbnailUrl:        r.ThumbnailUrl,
		ThumbnailUpdatedAt:  r.ThumbnailUpdatedAt,
		UpdatedAt:           updatedAt,
	}
}

func (m *RoomMapper) ToEntities(rooms []*model.Room) []*entity.Room {
	entities := make([]*entity.Room, len(rooms))
	for i, r := range rooms {
		entities[i] = m.ToEntity(r)
	}
	return entities
}
