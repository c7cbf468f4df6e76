package contract

import (
	"context"

	"paintroom-be/internal/entity"
	"paintroom-be/internal/repository/specification"
)

type StrokeRepository interface {
	// Create inserts the stroke and fills Seq. A duplicate (room, id) pair is
	// ignored and reported with created=false.
	Create(ctx context.Context, stroke *entity.Stroke) (created bool, err error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Stroke, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	DeleteByRoom(ctx context.Context, roomId int64) (int64, error)
}
