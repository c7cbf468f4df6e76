package implementation

import (
	"context"
	"errors"
	"time"

	"paintroom-be/internal/entity"
	"paintroom-be/internal/mapper"
	"paintroom-be/internal/model"
	"paintroom-be/internal/repository/contract"
	"paintroom-be/internal/repository/specification"

	"gorm.io/gorm"
)

type RoomRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.RoomMapper
}

func NewRoomRepository(db *gorm.DB) contract.RoomRepository {
	return &RoomRepositoryImpl{
		db:     db,
		mapper: mapper.NewRoomMapper(),
	}
}

func (r *RoomRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *RoomRepositoryImpl) Create(ctx context.Context, room *entity.Room) error {
	m := r.mapper.ToModel(room)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*room = *r.mapper.ToEntity(m)
	return nil
}

func (r *RoomRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Room, error) {
	var m model.Room
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *RoomRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Room, error) {
	var models []*model.Room
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *RoomRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.Room{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *RoomRepositoryImpl) Activate(ctx context.Context, id int64, startAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Room{}).
		Where("id = ? AND is_active = ?", id, false).
		Updates(map[string]interface{}{
			"is_active":            true,
			"session_start_at":     startAt,
			"thumbnail_updated_at": nil,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *RoomRepositoryImpl) Deactivate(ctx context.Context, id int64, imageUrl string, endedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Room{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":              false,
			"session_start_at":       nil,
			"last_session_image_url": imageUrl,
			"last_session_ended_at":  endedAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *RoomRepositoryImpl) UpdateThumbnail(ctx context.Context, id int64, url string, updatedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Room{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"thumbnail_url":        url,
			"thumbnail_updated_at": updatedAt,
		})
	return res.RowsAffected == 1, res.Error
}
