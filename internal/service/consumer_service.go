package service

import (
	"context"
	"encoding/json"

	"paintroom-be/internal/dto"
	"paintroom-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
)

// RoomChangeSink reacts to committed changes. The realtime hub and the lobby
// cache are sinks.
type RoomChangeSink interface {
	HandleRoomChange(change dto.RoomChange)
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	sinks      []RoomChangeSink
	logger     logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	log logger.ILogger,
	sinks ...RoomChangeSink,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		sinks:      sinks,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	var change dto.RoomChange
	if err := json.Unmarshal(msg.Payload, &change); err != nil {
		cs.logger.Error("ConsumerService", "Dropping undecodable room change", map[string]interface{}{"error": err, "uuid": msg.UUID})
		msg.Ack() // retrying will not fix a bad payload
		return
	}

	for _, sink := range cs.sinks {
		sink.HandleRoomChange(change)
	}
	msg.Ack()
}
