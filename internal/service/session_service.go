package service

import (
	"context"
	"fmt"

	"paintroom-be/internal/dto"
	"paintroom-be/internal/entity"
	"paintroom-be/internal/pkg/apperr"
	"paintroom-be/internal/pkg/logger"
	"paintroom-be/internal/repository/contract"
	"paintroom-be/internal/repository/specification"
	"paintroom-be/internal/repository/unitofwork"
	"paintroom-be/internal/storage"
	"paintroom-be/pkg/events"
	"paintroom-be/pkg/humancheck"

	"golang.org/x/crypto/bcrypt"
)

type ISessionService interface {
	Get(ctx context.Context, roomId int64) (*dto.RoomResponse, error)
	Start(ctx context.Context, roomId int64, humanToken string) (*dto.RoomResponse, error)
	Finish(ctx context.Context, roomId int64, req *dto.FinishSessionRequest) (*dto.RoomResponse, error)
}

type sessionService struct {
	uowFactory unitofwork.RepositoryFactory
	locks      contract.ArchiveLockRepository
	blobs      storage.BlobStore
	verifier   humancheck.Verifier
	strokes    IStrokeService
	rules      SessionRules
	notify     notifier
	logger     logger.ILogger
}

func NewSessionService(
	uowFactory unitofwork.RepositoryFactory,
	locks contract.ArchiveLockRepository,
	blobs storage.BlobStore,
	verifier humancheck.Verifier,
	strokes IStrokeService,
	changes IPublisherService,
	eventPublisher events.Publisher,
	rules SessionRules,
	log logger.ILogger,
) ISessionService {
	return &sessionService{
		uowFactory: uowFactory,
		locks:      locks,
		blobs:      blobs,
		verifier:   verifier,
		strokes:    strokes,
		rules:      rules,
		notify: notifier{
			changes: changes,
			events:  eventPublisher,
			rules:   rules,
			logger:  log,
			module:  "SessionService",
		},
		logger: log,
	}
}

func (s *sessionService) Get(ctx context.Context, roomId int64) (*dto.RoomResponse, error) {
	room, err := s.findRoom(ctx, s.uowFactory.NewUnitOfWork(ctx), roomId)
	if err != nil {
		return nil, err
	}
	return toRoomResponse(room, s.rules.TimeLimit), nil
}

func (s *sessionService) findRoom(ctx context.Context, uow unitofwork.UnitOfWork, roomId int64) (*entity.Room, error) {
	room, err := uow.RoomRepository().FindOne(ctx, specification.ByID{ID: roomId})
	if err != nil {
		return nil, fmt.Errorf("%w: load room %d: %v", apperr.ErrStore, roomId, err)
	}
	if room == nil {
		return nil, apperr.ErrNotFound
	}
	return room, nil
}

// Start moves an idle room to ACTIVE. Leftover strokes are cleared in the
// same transaction as the activation.
func (s *sessionService) Start(ctx context.Context, roomId int64, humanToken string) (*dto.RoomResponse, error) {
	if err := verifyHuman(ctx, s.verifier, humanToken); err != nil {
		s.logger.Warn("SessionService", "Start rejected by human check", map[string]interface{}{"room_id": roomId})
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("%w: begin: %v", apperr.ErrStore, err)
	}
	defer uow.Rollback()

	room, err := s.findRoom(ctx, uow, roomId)
	if err != nil {
		return nil, err
	}
	if room.IsActive {
		return nil, apperr.ErrSessionActive
	}

	cleared, err := uow.StrokeRepository().DeleteByRoom(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("%w: clear strokes: %v", apperr.ErrStore, err)
	}

	startAt := s.rules.now().UTC()
	ok, err := uow.RoomRepository().Activate(ctx, roomId, startAt)
	if err != nil {
		return nil, fmt.Errorf("%w: activate room: %v", apperr.ErrStore, err)
	}
	if !ok {
		// another start won the conditional update
		return nil, apperr.ErrSessionActive
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", apperr.ErrStore, err)
	}

	// A lock left over from an abandoned archive attempt must not finish
	// the new session.
	if err := s.locks.Delete(ctx, roomId); err != nil {
		s.logger.Warn("SessionService", "Failed to drop stale archive lock", map[string]interface{}{"room_id": roomId, "error": err.Error()})
	}

	room.IsActive = true
	room.SessionStartAt = &startAt
	room.ThumbnailUpdatedAt = nil

	s.notify.change(ctx, dto.RoomChange{Type: dto.EventStrokesCleared, RoomId: roomId})
	s.notify.roomUpdated(ctx, room)
	s.notify.emit(ctx, events.NewSessionStarted(roomId, startAt))

	s.logger.Info("SessionService", "Session started", map[string]interface{}{
		"room_id":         roomId,
		"cleared_strokes": cleared,
	})
	return toRoomResponse(room, s.rules.TimeLimit), nil
}

// Finish consumes the room's archive lock and records the artifact as the
// room's last session image. The lock is single use: any failure after it is
// consumed leaves the caller needing a fresh credential.
func (s *sessionService) Finish(ctx context.Context, roomId int64, req *dto.FinishSessionRequest) (*dto.RoomResponse, error) {
	lock, err := s.locks.Get(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("%w: load archive lock: %v", apperr.ErrStore, err)
	}
	if lock == nil {
		return nil, apperr.ErrAuth
	}

	now := s.rules.now().UTC()
	if lock.Expired(now) {
		// Consume only drops this exact lock; a credential issued since the
		// read stays valid.
		consumed, err := s.locks.Consume(ctx, lock)
		if err != nil {
			s.logger.Warn("SessionService", "Failed to drop expired archive lock", map[string]interface{}{"room_id": roomId, "error": err.Error()})
		}
		if consumed {
			s.discardArtifact(ctx, roomId, lock.ObjectPath)
		}
		return nil, apperr.ErrExpired
	}

	if bcrypt.CompareHashAndPassword(lock.SecretHash, []byte(req.FinishToken)) != nil {
		s.logger.Warn("SessionService", "Finish token mismatch", map[string]interface{}{"room_id": roomId})
		return nil, apperr.ErrAuth
	}
	if req.ArtifactUrl != lock.PublicUrl {
		s.logger.Warn("SessionService", "Artifact url does not match lock", map[string]interface{}{"room_id": roomId})
		return nil, apperr.ErrAuth
	}

	exists, err := s.blobs.Exists(ctx, lock.ObjectPath)
	if err != nil {
		return nil, fmt.Errorf("%w: check artifact: %v", apperr.ErrUpload, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: artifact %s not found", apperr.ErrUpload, lock.ObjectPath)
	}

	consumed, err := s.locks.Consume(ctx, lock)
	if err != nil {
		return nil, fmt.Errorf("%w: consume archive lock: %v", apperr.ErrStore, err)
	}
	if !consumed {
		// a concurrent finish took it first
		return nil, apperr.ErrAuth
	}

	// Deactivate waits on the share lock of any stroke insert in flight, so
	// the clear below sees every stroke accepted for this session.
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("%w: begin: %v", apperr.ErrStore, err)
	}
	defer uow.Rollback()

	ok, err := uow.RoomRepository().Deactivate(ctx, roomId, lock.PublicUrl, now)
	if err != nil {
		return nil, fmt.Errorf("%w: deactivate room: %v", apperr.ErrStore, err)
	}
	if !ok {
		s.discardArtifact(ctx, roomId, lock.ObjectPath)
		return nil, apperr.ErrSessionNotActive
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", apperr.ErrStore, err)
	}

	if _, err := s.strokes.ClearAll(ctx, roomId); err != nil {
		s.logger.Error("SessionService", "Post-finish clear failed", map[string]interface{}{"room_id": roomId, "error": err})
	}

	room, err := s.findRoom(ctx, uow, roomId)
	if err != nil {
		return nil, err
	}

	s.notify.roomUpdated(ctx, room)
	s.notify.emit(ctx, events.NewSessionFinished(roomId, lock.PublicUrl, now, lock.Kind))

	s.logger.Info("SessionService", "Session finished", map[string]interface{}{
		"room_id": roomId,
		"kind":    lock.Kind,
		"url":     lock.PublicUrl,
	})
	return toRoomResponse(room, s.rules.TimeLimit), nil
}

// discardArtifact removes an uploaded archive no session will ever point at.
func (s *sessionService) discardArtifact(ctx context.Context, roomId int64, objectPath string) {
	if err := s.blobs.Delete(ctx, objectPath); err != nil {
		s.logger.Warn("SessionService", "Failed to delete orphaned artifact", map[string]interface{}{
			"room_id": roomId,
			"object":  objectPath,
			"error":   err.Error(),
		})
	}
}

// verifyHuman fails closed: a verifier error counts as a failed check.
func verifyHuman(ctx context.Context, verifier humancheck.Verifier, token string) error {
	if verifier == nil {
		return apperr.ErrAuth
	}
	ok, err := verifier.Verify(ctx, token)
	if err != nil || !ok {
		return apperr.ErrAuth
	}
	return nil
}
