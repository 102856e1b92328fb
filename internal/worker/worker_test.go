package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/internal/models"
	"github.com/mohitjoer/customer-support-voice-agent/internal/service"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	requests []*service.ActionRequest
	resp     *service.ActionResponse
	err      error
}

func (fs *fakeService) HandleAction(ctx context.Context, req *service.ActionRequest) (*service.ActionResponse, error) {
	fs.requests = append(fs.requests, req)
	return fs.resp, fs.err
}

type fakePublisher struct {
	events []*models.ActionCompletedEvent
	err    error
}

func (fp *fakePublisher) PublishActionCompleted(ctx context.Context, event *models.ActionCompletedEvent) error {
	fp.events = append(fp.events, event)
	return fp.err
}

func requestedMessage(t *testing.T, event models.ActionRequestedEvent) kafka.Message {
	t.Helper()
	event.EventType = models.EventTypeActionRequested
	event.Timestamp = time.Now()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("room-" + event.RoomName), Value: value}
}

func TestActionWorkerDispatchesAndPublishes(t *testing.T) {
	svc := &fakeService{resp: &service.ActionResponse{Result: "No order found with ID HT9999.", Outcome: "not_found"}}
	pub := &fakePublisher{}
	w := NewActionWorker(nil, svc, pub)

	msg := requestedMessage(t, models.ActionRequestedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-1"},
		RoomName:  "call-1",
		Action:    "check_order_status",
		OrderID:   "HT9999",
		Payload:   json.RawMessage(`"2026-11-01"`),
	})

	require.NoError(t, w.eventHandler.HandleMessage(context.Background(), msg))

	require.Len(t, svc.requests, 1)
	req := svc.requests[0]
	assert.Equal(t, "evt-1", req.RequestID)
	assert.Equal(t, "call-1", req.RoomName)
	assert.Equal(t, "check_order_status", req.Action)
	assert.Equal(t, "2026-11-01", req.Payload)

	require.Len(t, pub.events, 1)
	completed := pub.events[0]
	assert.Equal(t, models.EventTypeActionCompleted, completed.EventType)
	assert.Equal(t, "evt-1", completed.RequestID)
	assert.Equal(t, "not_found", completed.Outcome)
	assert.Equal(t, "No order found with ID HT9999.", completed.Result)
}

func TestActionWorkerDropsInvalidEvent(t *testing.T) {
	svc := &fakeService{}
	pub := &fakePublisher{}
	w := NewActionWorker(nil, svc, pub)

	msg := requestedMessage(t, models.ActionRequestedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-2"},
		Action:    "check_order_status",
	})

	assert.NoError(t, w.eventHandler.HandleMessage(context.Background(), msg))
	assert.Empty(t, svc.requests)
	assert.Empty(t, pub.events)
}

func TestActionWorkerSkipsDuplicate(t *testing.T) {
	svc := &fakeService{err: service.ErrDuplicateRequest}
	pub := &fakePublisher{}
	w := NewActionWorker(nil, svc, pub)

	msg := requestedMessage(t, models.ActionRequestedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-3"},
		RoomName:  "call-1",
		Action:    "end_call",
	})

	assert.NoError(t, w.eventHandler.HandleMessage(context.Background(), msg))
	assert.Empty(t, pub.events)
}

func TestActionWorkerPublishFailureIsSwallowed(t *testing.T) {
	svc := &fakeService{resp: &service.ActionResponse{Result: "call ended", Outcome: "success"}}
	pub := &fakePublisher{err: errors.New("kafka down")}
	w := NewActionWorker(nil, svc, pub)

	msg := requestedMessage(t, models.ActionRequestedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-4"},
		RoomName:  "call-1",
		Action:    "end_call",
	})

	assert.NoError(t, w.eventHandler.HandleMessage(context.Background(), msg))
	assert.Len(t, pub.events, 1)
}

func TestActionWorkerIgnoresOtherEvents(t *testing.T) {
	svc := &fakeService{}
	w := NewActionWorker(nil, svc, nil)

	value, err := json.Marshal(models.BaseEvent{EventID: "evt-5", EventType: models.EventTypeActionCompleted})
	require.NoError(t, err)

	assert.NoError(t, w.eventHandler.HandleMessage(context.Background(), kafka.Message{Value: value}))
	assert.Empty(t, svc.requests)
}

func TestActionWorkerRejectsUndecodableMessage(t *testing.T) {
	w := NewActionWorker(nil, &fakeService{}, nil)

	assert.Error(t, w.eventHandler.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
}
