package contract

import (
	"context"
	"time"

	"paintroom-be/internal/entity"
	"paintroom-be/internal/repository/specification"
)

// RoomRepository guards every state transition with a conditional update.
// The bool results report whether the row was actually transitioned.
type RoomRepository interface {
	Create(ctx context.Context, room *entity.Room) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Room, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Room, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)

	Activate(ctx context.Context, id int64, startAt time.Time) (bool, error)
	Deactivate(ctx context.Context, id int64, imageUrl string, endedAt time.Time) (bool, error)
	UpdateThumbnail(ctx context.Context, id int64, url string, updatedAt time.Time) (bool, error)
}
