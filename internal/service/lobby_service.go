package service

import (
	"context"
	"fmt"
	"time"

	"paintroom-be/internal/dto"
	"paintroom-be/internal/pkg/logger"
	"paintroom-be/internal/repository/contract"
	"paintroom-be/internal/repository/specification"
	"paintroom-be/internal/repository/unitofwork"
	"paintroom-be/pkg/events"
	natspkg "paintroom-be/pkg/nats"

	"github.com/patrickmn/go-cache"
)

const roomListKey = "rooms"

// EventSubscriber is the part of the NATS subscriber the lobby needs.
type EventSubscriber interface {
	Subscribe(subject string, durableName string, handler natspkg.EventHandler) error
}

type ILobbyService interface {
	List(ctx context.Context) ([]*dto.RoomListItem, error)
	Presence(ctx context.Context, roomId int64) ([]dto.PresenceMember, error)
	// Start listens for lifecycle events from other instances.
	Start() error
	HandleRoomChange(change dto.RoomChange)
}

type lobbyService struct {
	uowFactory unitofwork.RepositoryFactory
	presence   contract.PresenceRepository
	subscriber EventSubscriber
	rules      SessionRules
	cache      *cache.Cache
	logger     logger.ILogger
}

// NewLobbyService caches the room list for listTTL. Session transitions on
// any instance drop the cached list early.
func NewLobbyService(
	uowFactory unitofwork.RepositoryFactory,
	presence contract.PresenceRepository,
	subscriber EventSubscriber,
	rules SessionRules,
	listTTL time.Duration,
	log logger.ILogger,
) ILobbyService {
	return &lobbyService{
		uowFactory: uowFactory,
		presence:   presence,
		subscriber: subscriber,
		rules:      rules,
		cache:      cache.New(listTTL, 2*listTTL),
		logger:     log,
	}
}

func (s *lobbyService) List(ctx context.Context) ([]*dto.RoomListItem, error) {
	if x, found := s.cache.Get(roomListKey); found {
		return x.([]*dto.RoomListItem), nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	rooms, err := uow.RoomRepository().FindAll(ctx, specification.InIDOrder{})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	items := make([]*dto.RoomListItem, 0, len(rooms))
	for _, room := range rooms {
		item := &dto.RoomListItem{RoomResponse: *toRoomResponse(room, s.rules.TimeLimit)}

		if room.IsActive {
			count, err := uow.StrokeRepository().Count(ctx, specification.ByRoomID{RoomID: room.Id})
			if err != nil {
				return nil, fmt.Errorf("count strokes: %w", err)
			}
			item.StrokeCount = count
		}

		if entries, err := s.presence.List(ctx, room.Id); err == nil {
			item.Participants = len(toRosterMembers(entries))
		} else {
			s.logger.Warn("LobbyService", "Presence unavailable", map[string]interface{}{"room_id": room.Id, "error": err.Error()})
		}

		items = append(items, item)
	}

	s.cache.SetDefault(roomListKey, items)
	return items, nil
}

func (s *lobbyService) Presence(ctx context.Context, roomId int64) ([]dto.PresenceMember, error) {
	entries, err := s.presence.List(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}

	members := toRosterMembers(entries)
	out := make([]dto.PresenceMember, 0, len(members))
	for _, m := range members {
		out = append(out, dto.PresenceMember{Id: m.Id, Name: m.Name, JoinedAt: m.JoinedAt})
	}
	return out, nil
}

func (s *lobbyService) HandleRoomChange(change dto.RoomChange) {
	switch change.Type {
	case dto.EventRoomUpdated, dto.EventStrokesCleared:
		s.cache.Delete(roomListKey)
	}
}

func (s *lobbyService) Start() error {
	if s.subscriber == nil {
		return nil
	}
	// ephemeral consumer: every instance keeps its own cache fresh
	return s.subscriber.Subscribe(natspkg.SubjectPrefix+">", "", s.handleEvent)
}

func (s *lobbyService) handleEvent(_ context.Context, event events.Event) error {
	switch event.EventType() {
	case events.SessionStarted, events.SessionFinished, events.ThumbnailUpdated:
		s.cache.Delete(roomListKey)
		s.logger.Debug("LobbyService", "Room list invalidated", map[string]interface{}{
			"event":   event.EventType(),
			"room_id": event.RoomID(),
		})
	}
	return nil
}
