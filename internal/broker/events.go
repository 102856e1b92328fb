package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mohitjoer/customer-support-voice-agent/internal/models"
	"github.com/mohitjoer/customer-support-voice-agent/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type eventProducer interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing gateway events
type EventPublisher struct {
	producer eventProducer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer eventProducer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishActionCompleted publishes ActionCompleted event keyed by room
func (ep *EventPublisher) PublishActionCompleted(ctx context.Context, event *models.ActionCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, roomKey(event.RoomName), event)
}

// PublishActionAudited publishes ActionAudited event keyed by room
func (ep *EventPublisher) PublishActionAudited(ctx context.Context, event *models.ActionAuditedEvent) error {
	return ep.producer.PublishEvent(ctx, roomKey(event.RoomName), event)
}

func roomKey(room string) string {
	return fmt.Sprintf("room-%s", room)
}

// EventHandler handles incoming events
type EventHandler struct {
	onActionRequested func(context.Context, *models.ActionRequestedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnActionRequested registers a handler for ActionRequested events
func (eh *EventHandler) OnActionRequested(handler func(context.Context, *models.ActionRequestedEvent) error) {
	eh.onActionRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	logger := util.GetLogger()
	logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID),
	)

	switch baseEvent.EventType {
	case models.EventTypeActionRequested:
		if eh.onActionRequested != nil {
			var event models.ActionRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ActionRequested event: %w", err)
			}
			return eh.onActionRequested(ctx, &event)
		}

	default:
		logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
