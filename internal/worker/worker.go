package worker

import (
	"context"
	"errors"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/internal/broker"
	"github.com/mohitjoer/customer-support-voice-agent/internal/models"
	"github.com/mohitjoer/customer-support-voice-agent/internal/service"
	"github.com/mohitjoer/customer-support-voice-agent/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type actionService interface {
	HandleAction(ctx context.Context, req *service.ActionRequest) (*service.ActionResponse, error)
}

type completionPublisher interface {
	PublishActionCompleted(ctx context.Context, event *models.ActionCompletedEvent) error
}

// ActionWorker dispatches ActionRequested events and publishes their results
type ActionWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	service      actionService
	publisher    completionPublisher
	validate     *validator.Validate
	logger       *zap.Logger
}

// NewActionWorker creates a new action worker. publisher may be nil.
func NewActionWorker(
	consumer *broker.Consumer,
	svc actionService,
	publisher completionPublisher,
) *ActionWorker {
	w := &ActionWorker{
		consumer:  consumer,
		service:   svc,
		publisher: publisher,
		validate:  validator.New(),
		logger:    util.GetLogger(),
	}

	w.eventHandler = broker.NewEventHandler()
	w.eventHandler.OnActionRequested(w.handleActionRequested)

	return w
}

// Start starts the worker
func (w *ActionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting action worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ActionWorker) Stop() error {
	w.logger.Info("Stopping action worker")
	return w.consumer.Close()
}

// handleActionRequested never fails the message: invalid and duplicate
// events are dropped so they are not redelivered forever
func (w *ActionWorker) handleActionRequested(ctx context.Context, event *models.ActionRequestedEvent) error {
	if err := w.validate.Struct(event); err != nil {
		util.EventsConsumedTotal.WithLabelValues("invalid").Inc()
		w.logger.Warn("Dropping invalid ActionRequested event",
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return nil
	}

	resp, err := w.service.HandleAction(ctx, &service.ActionRequest{
		RequestID:           event.EventID,
		RoomName:            event.RoomName,
		ParticipantIdentity: event.ParticipantIdentity,
		Action:              event.Action,
		OrderID:             event.OrderID,
		Email:               event.Email,
		Payload:             service.PayloadString(event.Payload),
		ClosingMessage:      event.ClosingMessage,
	})
	if errors.Is(err, service.ErrDuplicateRequest) {
		util.EventsConsumedTotal.WithLabelValues("duplicate").Inc()
		return nil
	}
	if err != nil {
		util.EventsConsumedTotal.WithLabelValues("error").Inc()
		return err
	}

	util.EventsConsumedTotal.WithLabelValues("processed").Inc()

	if w.publisher == nil {
		return nil
	}

	completed := &models.ActionCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeActionCompleted,
			Timestamp: time.Now(),
		},
		RequestID: event.EventID,
		RoomName:  event.RoomName,
		Action:    event.Action,
		Outcome:   resp.Outcome,
		Result:    resp.Result,
	}

	if err := w.publisher.PublishActionCompleted(ctx, completed); err != nil {
		w.logger.Error("Failed to publish ActionCompleted event",
			zap.String("request_id", event.EventID),
			zap.Error(err))
	}

	return nil
}
