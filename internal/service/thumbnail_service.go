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
	"paintroom-be/pkg/canvas"
	"paintroom-be/pkg/events"
	"paintroom-be/pkg/roster"
)

type IThumbnailService interface {
	IssueCredential(ctx context.Context, roomId int64, req *dto.ThumbnailCredentialRequest) (*dto.ThumbnailCredentialResponse, error)
	Update(ctx context.Context, roomId int64, req *dto.UpdateThumbnailRequest) (*dto.RoomResponse, error)
}

type thumbnailService struct {
	uowFactory unitofwork.RepositoryFactory
	presence   contract.PresenceRepository
	blobs      storage.BlobStore
	rules      SessionRules
	notify     notifier
	logger     logger.ILogger
}

func NewThumbnailService(
	uowFactory unitofwork.RepositoryFactory,
	presence contract.PresenceRepository,
	blobs storage.BlobStore,
	changes IPublisherService,
	eventPublisher events.Publisher,
	rules SessionRules,
	log logger.ILogger,
) IThumbnailService {
	return &thumbnailService{
		uowFactory: uowFactory,
		presence:   presence,
		blobs:      blobs,
		rules:      rules,
		notify: notifier{
			changes: changes,
			events:  eventPublisher,
			rules:   rules,
			logger:  log,
			module:  "ThumbnailService",
		},
		logger: log,
	}
}

func thumbnailObjectPath(roomId int64) string {
	return fmt.Sprintf("thumbnails/room_%d.jpg", roomId)
}

func (s *thumbnailService) IssueCredential(ctx context.Context, roomId int64, req *dto.ThumbnailCredentialRequest) (*dto.ThumbnailCredentialResponse, error) {
	if req.Size > s.rules.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", apperr.ErrSizeLimit, req.Size, s.rules.MaxUploadBytes)
	}
	if _, err := s.authorize(ctx, roomId, req.UserId); err != nil {
		return nil, err
	}

	objectPath := thumbnailObjectPath(roomId)
	upload, err := s.blobs.SignedUploadURL(ctx, objectPath, canvas.ThumbnailContentType, req.Size, s.rules.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: sign upload: %v", apperr.ErrStore, err)
	}

	return &dto.ThumbnailCredentialResponse{
		Upload: dto.UploadTarget{
			Url:     upload.URL,
			Method:  upload.Method,
			Headers: upload.Headers,
		},
		PublicUrl:  s.blobs.PublicURL(objectPath),
		ObjectPath: objectPath,
	}, nil
}

// Update stamps the room with the freshly uploaded thumbnail. The url gets
// a version query so caches pick up the overwritten object.
func (s *thumbnailService) Update(ctx context.Context, roomId int64, req *dto.UpdateThumbnailRequest) (*dto.RoomResponse, error) {
	room, err := s.authorize(ctx, roomId, req.UserId)
	if err != nil {
		return nil, err
	}

	objectPath := thumbnailObjectPath(roomId)
	exists, err := s.blobs.Exists(ctx, objectPath)
	if err != nil {
		return nil, fmt.Errorf("%w: check thumbnail: %v", apperr.ErrUpload, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: thumbnail %s not found", apperr.ErrUpload, objectPath)
	}

	now := s.rules.now().UTC()
	url := fmt.Sprintf("%s?v=%d", s.blobs.PublicURL(objectPath), now.Unix())

	uow := s.uowFactory.NewUnitOfWork(ctx)
	ok, err := uow.RoomRepository().UpdateThumbnail(ctx, roomId, url, now)
	if err != nil {
		return nil, fmt.Errorf("%w: update thumbnail: %v", apperr.ErrStore, err)
	}
	if !ok {
		return nil, apperr.ErrSessionNotActive
	}

	room.ThumbnailUrl = &url
	room.ThumbnailUpdatedAt = &now

	s.notify.roomUpdated(ctx, room)
	s.notify.emit(ctx, events.NewThumbnailUpdated(roomId, url, now))

	s.logger.Info("ThumbnailService", "Thumbnail updated", map[string]interface{}{"room_id": roomId, "user_id": req.UserId})
	return toRoomResponse(room, s.rules.TimeLimit), nil
}

// authorize admits only the elected leader of an active room, and only once
// the minimum gap since the last thumbnail has passed.
func (s *thumbnailService) authorize(ctx context.Context, roomId int64, userId string) (*entity.Room, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	room, err := uow.RoomRepository().FindOne(ctx, specification.ByID{ID: roomId})
	if err != nil {
		return nil, fmt.Errorf("%w: load room %d: %v", apperr.ErrStore, roomId, err)
	}
	if room == nil {
		return nil, apperr.ErrNotFound
	}
	if !room.IsActive {
		return nil, apperr.ErrSessionNotActive
	}

	entries, err := s.presence.List(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("%w: list presence: %v", apperr.ErrStore, err)
	}
	leader, ok := roster.ElectLeader(toRosterMembers(entries))
	if !ok || leader != userId {
		return nil, apperr.ErrNotLeader
	}

	now := s.rules.now()
	if room.ThumbnailUpdatedAt != nil && now.Sub(*room.ThumbnailUpdatedAt) < s.rules.ThumbnailMinGap {
		return nil, apperr.ErrRateLimited
	}
	return room, nil
}
