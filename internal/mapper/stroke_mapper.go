package mapper

import (
	"encoding/json"
	"fmt"

	"paintroom-be/internal/entity"
	"paintroom-be/internal/model"

	"gorm.io/datatypes"
)

type StrokeMapper struct{}

func NewStrokeMapper() *StrokeMapper {
	return &StrokeMapper{}
}

func (m *StrokeMapper) ToEntity(s *model.Stroke) (*entity.Stroke, error) {
	if s == nil {
		return nil, nil
	}

	var points []float64
	if len(s.Points) > 0 {
		if err := json.Unmarshal(s.Points, &points); err != nil {
			return nil, fmt.Errorf("decode points of stroke %s: %w", s.Id, err)
		}
	}

	return &entity.Stroke{
		Seq:       s.Seq,
		Id:        s.Id,
		RoomId:    s.RoomId,
		UserId:    s.UserId,
		UserName:  s.UserName,
		Points:    points,
		Color:     s.Color,
		Width:     s.Width,
		Tool:      s.Tool,
		LayerId:   s.LayerId,
		CreatedAt: s.CreatedAt,
	}, nil
}

func (m *StrokeMapper) ToModel(s *entity.Stroke) (*model.Stroke, error) {
	if s == nil {
		return nil, nil
	}

	points, err := json.Marshal(s.Points)
	if err != nil {
		return nil, fmt.Errorf("encode points of stroke %s: %w", s.Id, err)
	}

	return &model.Stroke{
		Seq:       s.Seq,
		Id:        s.Id,
		RoomId:    s.RoomId,
		UserId:    s.UserId,
		UserName:  s.UserName,
		Points:    datatypes.JSON(points),
		Color:     s.Color,
		Width:     s.Width,
		Tool:      s.Tool,
		LayerId:   s.LayerId,
		CreatedAt: s.CreatedAt,
	}, nil
}

func (m *StrokeMapper) ToEntities(strokes []*model.Stroke) ([]*entity.Stroke, error) {
	entities := make([]*entity.Stroke, 0, len(strokes))
	for _, s := range strokes {
		e, err := m.ToEntity(s)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}
