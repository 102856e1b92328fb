package models

import (
	"encoding/json"
	"time"
)

// Event types
const (
	EventTypeActionRequested = "ACTION_REQUESTED"
	EventTypeActionCompleted = "ACTION_COMPLETED"
	EventTypeActionAudited   = "ACTION_AUDITED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ActionRequestedEvent is published by the speech pipeline for every recognized intent
type ActionRequestedEvent struct {
	BaseEvent
	RoomName            string          `json:"room_name" validate:"required"`
	ParticipantIdentity string          `json:"participant_identity,omitempty"`
	Action              string          `json:"action" validate:"required"`
	OrderID             string          `json:"order_id,omitempty"`
	Email               string          `json:"email,omitempty"`
	Payload             json.RawMessage `json:"payload,omitempty"`
	ClosingMessage      string          `json:"closing_message,omitempty"`
}

// ActionCompletedEvent carries the result of a dispatched action back to the speech pipeline
type ActionCompletedEvent struct {
	BaseEvent
	RequestID string      `json:"request_id"`
	RoomName  string      `json:"room_name"`
	Action    string      `json:"action"`
	Outcome   string      `json:"outcome"`
	Result    interface{} `json:"result"`
}

// ActionAuditedEvent mirrors an audit entry for external reporting consumers
type ActionAuditedEvent struct {
	BaseEvent
	EntryID             string                 `json:"entry_id"`
	Action              string                 `json:"action"`
	OrderID             string                 `json:"order_id"`
	Outcome             string                 `json:"outcome"`
	Result              map[string]interface{} `json:"result,omitempty"`
	Error               string                 `json:"error,omitempty"`
	RoomName            string                 `json:"room_name,omitempty"`
	ParticipantIdentity string                 `json:"participant_identity,omitempty"`
}
