package service

import (
	"context"
	"encoding/json"

	"paintroom-be/internal/dto"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// IPublisherService emits committed room changes onto the in-process feed.
type IPublisherService interface {
	PublishRoomChange(ctx context.Context, change dto.RoomChange) error
}

type publisherService struct {
	topicName string
	pubSub    message.Publisher
}

func NewPublisherService(topicName string, pubSub message.Publisher) IPublisherService {
	return &publisherService{
		topicName: topicName,
		pubSub:    pubSub,
	}
}

func (p *publisherService) PublishRoomChange(ctx context.Context, change dto.RoomChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return p.pubSub.Publish(p.topicName, msg)
}
