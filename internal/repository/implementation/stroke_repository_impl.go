package implementation

import (
	"context"

	"paintroom-be/internal/entity"
	"paintroom-be/internal/mapper"
	"paintroom-be/internal/model"
	"paintroom-be/internal/repository/contract"
	"paintroom-be/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StrokeRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.StrokeMapper
}

func NewStrokeRepository(db *gorm.DB) contract.StrokeRepository {
	return &StrokeRepositoryImpl{
		db:     db,
		mapper: mapper.NewStrokeMapper(),
	}
}

func (r *StrokeRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *StrokeRepositoryImpl) Create(ctx context.Context, stroke *entity.Stroke) (bool, error) {
	m, err := r.mapper.ToModel(stroke)
	if err != nil {
		return false, err
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	stroke.Seq = m.Seq
	stroke.CreatedAt = m.CreatedAt
	return true, nil
}

func (r *StrokeRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Stroke, error) {
	var models []*model.Stroke
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models)
}

func (r *StrokeRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.Stroke{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteByRoom is idempotent: an empty room deletes zero rows without error.
func (r *StrokeRepositoryImpl) DeleteByRoom(ctx context.Context, roomId int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("room_id = ?", roomId).Delete(&model.Stroke{})
	return res.RowsAffected, res.Error
}
