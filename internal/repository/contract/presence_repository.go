package contract

import (
	"context"

	"paintroom-be/internal/entity"
)

type PresenceRepository interface {
	Track(ctx context.Context, roomId int64, p entity.Presence) error
	Touch(ctx context.Context, roomId int64, connId string) error
	Untrack(ctx context.Context, roomId int64, connId string) error
	List(ctx context.Context, roomId int64) ([]entity.Presence, error)
}
