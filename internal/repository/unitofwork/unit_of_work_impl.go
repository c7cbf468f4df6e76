package unitofwork

import (
	"context"
	"errors"

	"paintroom-be/internal/repository/contract"
	"paintroom-be/internal/repository/implementation"

	"gorm.io/gorm"
)

var (
	errTxStarted = errors.New("unitofwork: transaction already open")
	errNoTx      = errors.New("unitofwork: no open transaction")
)

type gormFactory struct {
	db *gorm.DB
}

func NewRepositoryFactory(db *gorm.DB) RepositoryFactory {
	return gormFactory{db: db}
}

// NewUnitOfWork is cheap; callers take one per operation.
func (f gormFactory) NewUnitOfWork(context.Context) UnitOfWork {
	return &gormUnitOfWork{db: f.db}
}

type gormUnitOfWork struct {
	db *gorm.DB
	tx *gorm.DB
}

func (u *gormUnitOfWork) conn() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

func (u *gormUnitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return errTxStarted
	}
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	u.tx = tx
	return nil
}

func (u *gormUnitOfWork) Commit() error {
	return u.finish((*gorm.DB).Commit)
}

// Rollback after a successful Commit reports errNoTx, which the deferred
// calls in services ignore.
func (u *gormUnitOfWork) Rollback() error {
	return u.finish((*gorm.DB).Rollback)
}

func (u *gormUnitOfWork) finish(end func(*gorm.DB) *gorm.DB) error {
	if u.tx == nil {
		return errNoTx
	}
	tx := u.tx
	u.tx = nil
	return end(tx).Error
}

func (u *gormUnitOfWork) RoomRepository() contract.RoomRepository {
	return implementation.NewRoomRepository(u.conn())
}

func (u *gormUnitOfWork) StrokeRepository() contract.StrokeRepository {
	return implementation.NewStrokeRepository(u.conn())
}
