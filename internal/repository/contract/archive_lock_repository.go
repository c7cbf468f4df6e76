package contract

import (
	"context"

	"paintroom-be/internal/entity"
)

// ArchiveLockRepository keeps at most one lock per room.
type ArchiveLockRepository interface {
	// Save replaces any existing lock for the room.
	Save(ctx context.Context, lock *entity.ArchiveLock) error
	Get(ctx context.Context, roomId int64) (*entity.ArchiveLock, error)
	// Consume deletes the lock only if it is still the one that was read.
	Consume(ctx context.Context, lock *entity.ArchiveLock) (bool, error)
	Delete(ctx context.Context, roomId int64) error
}
