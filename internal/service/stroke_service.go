package service

import (
	"context"
	"fmt"

	"paintroom-be/internal/dto"
	"paintroom-be/internal/entity"
	"paintroom-be/internal/pkg/apperr"
	"paintroom-be/internal/pkg/logger"
	"paintroom-be/internal/repository/specification"
	"paintroom-be/internal/repository/unitofwork"
	"paintroom-be/pkg/canvas"
)

type IStrokeService interface {
	Submit(ctx context.Context, roomId int64, req *dto.SubmitStrokeRequest) (*dto.StrokeResponse, error)
	ListSince(ctx context.Context, roomId int64, afterSeq *int64) ([]*dto.StrokeResponse, error)
	ClearAll(ctx context.Context, roomId int64) (int64, error)
	Count(ctx context.Context, roomId int64) (int64, error)
	Snapshot(ctx context.Context, roomId int64) ([]canvas.Stroke, error)
}

type strokeService struct {
	uowFactory unitofwork.RepositoryFactory
	changes    IPublisherService
	logger     logger.ILogger
}

func NewStrokeService(
	uowFactory unitofwork.RepositoryFactory,
	changes IPublisherService,
	log logger.ILogger,
) IStrokeService {
	return &strokeService{
		uowFactory: uowFactory,
		changes:    changes,
		logger:     log,
	}
}

// Submit appends one stroke to an active room's log. Retries with the same
// stroke id are accepted and not broadcast again.
func (s *strokeService) Submit(ctx context.Context, roomId int64, req *dto.SubmitStrokeRequest) (*dto.StrokeResponse, error) {
	shape := canvas.Stroke{
		ID:      req.Id,
		Points:  req.Points,
		Color:   req.Color,
		Width:   req.Width,
		Tool:    req.Tool,
		LayerID: req.LayerId,
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	// The share lock on the room keeps Finish from deactivating it between
	// the check and the insert; its post-finish clear then sees this stroke.
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("%w: begin: %v", apperr.ErrStore, err)
	}
	defer uow.Rollback()

	room, err := uow.RoomRepository().FindOne(ctx, specification.ByID{ID: roomId}, specification.ForShare{})
	if err != nil {
		return nil, fmt.Errorf("%w: load room %d: %v", apperr.ErrStore, roomId, err)
	}
	if room == nil {
		return nil, apperr.ErrNotFound
	}
	if !room.IsActive {
		return nil, apperr.ErrSessionNotActive
	}

	stroke := &entity.Stroke{
		Id:       req.Id,
		RoomId:   roomId,
		UserId:   req.UserId,
		UserName: req.UserName,
		Points:   req.Points,
		Color:    req.Color,
		Width:    req.Width,
		Tool:     req.Tool,
		LayerId:  req.LayerId,
	}

	created, err := uow.StrokeRepository().Create(ctx, stroke)
	if err != nil {
		return nil, fmt.Errorf("%w: append stroke: %v", apperr.ErrStore, err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit stroke: %v", apperr.ErrStore, err)
	}

	res := toStrokeResponse(stroke)
	if !created {
		s.logger.Debug("StrokeService", "Duplicate stroke ignored", map[string]interface{}{"room_id": roomId, "stroke_id": req.Id})
		return res, nil
	}

	if err := s.changes.PublishRoomChange(ctx, dto.RoomChange{
		Type:   dto.EventStrokeInserted,
		RoomId: roomId,
		Stroke: res,
	}); err != nil {
		s.logger.Warn("StrokeService", "Failed to publish stroke insert", map[string]interface{}{"room_id": roomId, "error": err.Error()})
	}

	return res, nil
}

func (s *strokeService) ListSince(ctx context.Context, roomId int64, afterSeq *int64) ([]*dto.StrokeResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	room, err := uow.RoomRepository().FindOne(ctx, specification.ByID{ID: roomId})
	if err != nil {
		return nil, fmt.Errorf("%w: load room %d: %v", apperr.ErrStore, roomId, err)
	}
	if room == nil {
		return nil, apperr.ErrNotFound
	}

	strokes, err := uow.StrokeRepository().FindAll(ctx,
		specification.ByRoomID{RoomID: roomId},
		specification.AfterSeq{Seq: afterSeq},
		specification.InCommitOrder{},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list strokes: %v", apperr.ErrStore, err)
	}

	result := make([]*dto.StrokeResponse, 0, len(strokes))
	for _, st := range strokes {
		result = append(result, toStrokeResponse(st))
	}
	return result, nil
}

// ClearAll removes every stroke of the room. Clearing an empty room succeeds,
// and the clear notification is sent either way so late joiners reset too.
func (s *strokeService) ClearAll(ctx context.Context, roomId int64) (int64, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	deleted, err := uow.StrokeRepository().DeleteByRoom(ctx, roomId)
	if err != nil {
		return 0, fmt.Errorf("%w: clear strokes: %v", apperr.ErrStore, err)
	}

	if err := s.changes.PublishRoomChange(ctx, dto.RoomChange{Type: dto.EventStrokesCleared, RoomId: roomId}); err != nil {
		s.logger.Warn("StrokeService", "Failed to publish clear", map[string]interface{}{"room_id": roomId, "error": err.Error()})
	}

	s.logger.Info("StrokeService", "Strokes cleared", map[string]interface{}{"room_id": roomId, "deleted": deleted})
	return deleted, nil
}

func (s *strokeService) Count(ctx context.Context, roomId int64) (int64, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	n, err := uow.StrokeRepository().Count(ctx, specification.ByRoomID{RoomID: roomId})
	if err != nil {
		return 0, fmt.Errorf("%w: count strokes: %v", apperr.ErrStore, err)
	}
	return n, nil
}

// Snapshot returns the full log in render form.
func (s *strokeService) Snapshot(ctx context.Context, roomId int64) ([]canvas.Stroke, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	strokes, err := uow.StrokeRepository().FindAll(ctx,
		specification.ByRoomID{RoomID: roomId},
		specification.InCommitOrder{},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load strokes: %v", apperr.ErrStore, err)
	}

	out := make([]canvas.Stroke, 0, len(strokes))
	for _, st := range strokes {
		out = append(out, toCanvasStroke(st))
	}
	return out, nil
}
