package service

import (
	"context"

	"paintroom-be/internal/dto"
	"paintroom-be/internal/entity"
	"paintroom-be/internal/pkg/logger"
	"paintroom-be/pkg/events"
)

// notifier groups the two outbound channels a state change uses: the
// in-process change feed and the lifecycle event stream. Both are best
// effort once the database has committed.
type notifier struct {
	changes IPublisherService
	events  events.Publisher
	rules   SessionRules
	logger  logger.ILogger
	module  string
}

func (n notifier) roomUpdated(ctx context.Context, room *entity.Room) {
	if room == nil {
		return
	}
	n.change(ctx, dto.RoomChange{
		Type:   dto.EventRoomUpdated,
		RoomId: room.Id,
		Room:   toRoomResponse(room, n.rules.TimeLimit),
	})
}

func (n notifier) change(ctx context.Context, change dto.RoomChange) {
	if n.changes == nil {
		return
	}
	if err := n.changes.PublishRoomChange(ctx, change); err != nil {
		n.logger.Warn(n.module, "Failed to publish room change", map[string]interface{}{
			"room_id": change.RoomId,
			"type":    change.Type,
			"error":   err.Error(),
		})
	}
}

func (n notifier) emit(ctx context.Context, event events.Event) {
	if n.events == nil {
		return
	}
	if err := n.events.Publish(ctx, event); err != nil {
		n.logger.Warn(n.module, "Failed to publish lifecycle event", map[string]interface{}{
			"event":   event.EventType(),
			"room_id": event.RoomID(),
			"error":   err.Error(),
		})
	}
}
