package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
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
	"paintroom-be/pkg/humancheck"

	"golang.org/x/crypto/bcrypt"
)

type IArchiveService interface {
	IssueCredential(ctx context.Context, roomId int64, req *dto.ArchiveCredentialRequest) (*dto.ArchiveCredentialResponse, error)
	// StoreServerArtifact uploads a server rendered archive under a system
	// lock and returns the request that finishes the session with it.
	StoreServerArtifact(ctx context.Context, roomId int64, png []byte) (*dto.FinishSessionRequest, error)
}

type archiveService struct {
	uowFactory unitofwork.RepositoryFactory
	locks      contract.ArchiveLockRepository
	blobs      storage.BlobStore
	verifier   humancheck.Verifier
	rules      SessionRules
	logger     logger.ILogger
}

func NewArchiveService(
	uowFactory unitofwork.RepositoryFactory,
	locks contract.ArchiveLockRepository,
	blobs storage.BlobStore,
	verifier humancheck.Verifier,
	rules SessionRules,
	log logger.ILogger,
) IArchiveService {
	return &archiveService{
		uowFactory: uowFactory,
		locks:      locks,
		blobs:      blobs,
		verifier:   verifier,
		rules:      rules,
		logger:     log,
	}
}

func archiveObjectPath(roomId int64, millis int64) string {
	return fmt.Sprintf("archives/room_%d/%d.png", roomId, millis)
}

func newFinishSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *archiveService) IssueCredential(ctx context.Context, roomId int64, req *dto.ArchiveCredentialRequest) (*dto.ArchiveCredentialResponse, error) {
	if req.Size > s.rules.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", apperr.ErrSizeLimit, req.Size, s.rules.MaxUploadBytes)
	}

	kind := req.Kind
	if kind == "" {
		kind = entity.LockKindUser
	}
	if kind == entity.LockKindUser {
		if err := verifyHuman(ctx, s.verifier, req.Token); err != nil {
			s.logger.Warn("ArchiveService", "Credential rejected by human check", map[string]interface{}{"room_id": roomId})
			return nil, err
		}
	}

	lock, secret, err := s.issueLock(ctx, roomId, kind)
	if err != nil {
		return nil, err
	}

	upload, err := s.blobs.SignedUploadURL(ctx, lock.ObjectPath, canvas.ArchiveContentType, req.Size, s.rules.LockTTL)
	if err != nil {
		_ = s.locks.Delete(ctx, roomId)
		return nil, fmt.Errorf("%w: sign upload: %v", apperr.ErrStore, err)
	}

	return &dto.ArchiveCredentialResponse{
		Upload: dto.UploadTarget{
			Url:     upload.URL,
			Method:  upload.Method,
			Headers: upload.Headers,
		},
		FinishToken: secret,
		PublicUrl:   lock.PublicUrl,
		ObjectPath:  lock.ObjectPath,
		ExpiresAt:   lock.ExpiresAt,
	}, nil
}

func (s *archiveService) StoreServerArtifact(ctx context.Context, roomId int64, png []byte) (*dto.FinishSessionRequest, error) {
	if int64(len(png)) > s.rules.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", apperr.ErrSizeLimit, len(png), s.rules.MaxUploadBytes)
	}

	lock, secret, err := s.issueLock(ctx, roomId, entity.LockKindSystem)
	if err != nil {
		return nil, err
	}

	if err := s.blobs.Put(ctx, lock.ObjectPath, canvas.ArchiveContentType, png); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpload, err)
	}

	return &dto.FinishSessionRequest{
		ArtifactUrl: lock.PublicUrl,
		FinishToken: secret,
	}, nil
}

// issueLock replaces any previous lock of the room. A system lock is only
// granted once the server clock agrees the session ran out.
func (s *archiveService) issueLock(ctx context.Context, roomId int64, kind string) (*entity.ArchiveLock, string, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	room, err := uow.RoomRepository().FindOne(ctx, specification.ByID{ID: roomId})
	if err != nil {
		return nil, "", fmt.Errorf("%w: load room %d: %v", apperr.ErrStore, roomId, err)
	}
	if room == nil {
		return nil, "", apperr.ErrNotFound
	}
	if !room.IsActive {
		return nil, "", apperr.ErrSessionNotActive
	}

	now := s.rules.now().UTC()
	if kind == entity.LockKindSystem && !room.SessionExpired(now, s.rules.TimeLimit) {
		s.logger.Warn("ArchiveService", "System credential requested before expiry", map[string]interface{}{
			"room_id":   roomId,
			"remaining": room.Remaining(now, s.rules.TimeLimit).String(),
		})
		return nil, "", apperr.ErrAuth
	}

	secret, err := newFinishSecret()
	if err != nil {
		return nil, "", fmt.Errorf("generate finish token: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash finish token: %w", err)
	}

	objectPath := archiveObjectPath(roomId, now.UnixMilli())
	lock := &entity.ArchiveLock{
		RoomId:     roomId,
		SecretHash: hash,
		Kind:       kind,
		ObjectPath: objectPath,
		PublicUrl:  s.blobs.PublicURL(objectPath),
		ExpiresAt:  now.Add(s.rules.LockTTL),
	}
	if err := s.locks.Save(ctx, lock); err != nil {
		return nil, "", fmt.Errorf("%w: save archive lock: %v", apperr.ErrStore, err)
	}

	s.logger.Info("ArchiveService", "Archive lock issued", map[string]interface{}{
		"room_id":     roomId,
		"kind":        kind,
		"object_path": objectPath,
	})
	return lock, secret, nil
}
