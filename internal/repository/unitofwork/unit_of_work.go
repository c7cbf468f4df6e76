package unitofwork

import (
	"context"

	"paintroom-be/internal/repository/contract"
)

// UnitOfWork hands out repositories that share one connection, or one
// transaction between Begin and Commit.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	RoomRepository() contract.RoomRepository
	StrokeRepository() contract.StrokeRepository
}

type RepositoryFactory interface {
	NewUnitOfWork(ctx context.Context) UnitOfWork
}
