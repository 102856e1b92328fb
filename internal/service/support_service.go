package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/internal/gateway"
	"github.com/mohitjoer/customer-support-voice-agent/internal/session"
	"github.com/mohitjoer/customer-support-voice-agent/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrDuplicateRequest is returned when a request ID has already been handled
var ErrDuplicateRequest = errors.New("duplicate request")

const (
	defaultIdempotencyTTL = 24 * time.Hour
	outcomeTeardownFailed = "teardown_failed"
)

type idempotencyClaimer interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// SupportService routes speech-pipeline requests to the gateway or, for
// end_call, to the session manager
type SupportService struct {
	gateway        *gateway.Gateway
	sessions       *session.Manager
	idempotency    idempotencyClaimer
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewSupportService creates a new support service
func NewSupportService(gw *gateway.Gateway, sessions *session.Manager) *SupportService {
	return &SupportService{
		gateway:        gw,
		sessions:       sessions,
		idempotencyTTL: defaultIdempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// WithIdempotency skips requests whose RequestID was claimed before
func (s *SupportService) WithIdempotency(claimer idempotencyClaimer, ttl time.Duration) *SupportService {
	if ttl > 0 {
		s.idempotencyTTL = ttl
	}
	s.idempotency = claimer
	return s
}

// ActionRequest represents one recognized intent from a call
type ActionRequest struct {
	RequestID           string `json:"request_id,omitempty"`
	RoomName            string `json:"room_name"`
	ParticipantIdentity string `json:"participant_identity,omitempty"`
	Action              string `json:"action"`
	OrderID             string `json:"order_id,omitempty"`
	Email               string `json:"email,omitempty"`
	Payload             string `json:"payload,omitempty"`
	ClosingMessage      string `json:"closing_message,omitempty"`
}

// ActionResponse is what the speech pipeline verbalizes
type ActionResponse struct {
	Result  interface{} `json:"result"`
	Outcome string      `json:"outcome"`
}

// HandleAction dispatches one request. The only error is ErrDuplicateRequest;
// every other failure is carried in the response outcome.
func (s *SupportService) HandleAction(ctx context.Context, req *ActionRequest) (*ActionResponse, error) {
	ctx, span := util.StartSpan(ctx, "SupportService.HandleAction",
		attribute.String("action", req.Action),
		attribute.String("room", req.RoomName))
	defer span.End()

	if s.isDuplicate(ctx, req.RequestID) {
		s.logger.Info("Duplicate action request detected",
			zap.String("request_id", req.RequestID),
			zap.String("room", req.RoomName))
		return nil, ErrDuplicateRequest
	}

	action, err := gateway.ParseAction(req.Action)
	if err != nil {
		// the gateway still audits it as malformed input
		s.logger.Warn("Unrecognized action requested",
			zap.String("room", req.RoomName),
			zap.Error(err))
		action = gateway.Action(req.Action)
	}
	if action == gateway.ActionEndCall {
		return s.endCall(ctx, req), nil
	}

	if s.sessions != nil {
		if s.sessions.IsEnded(req.RoomName) {
			s.logger.Warn("Action requested after the call ended",
				zap.String("room", req.RoomName),
				zap.String("action", req.Action))
		} else {
			s.sessions.Touch(req.RoomName)
		}
	}

	out := s.gateway.Dispatch(ctx, gateway.Invocation{
		Action:              action,
		OrderID:             req.OrderID,
		Email:               req.Email,
		Payload:             req.Payload,
		RoomName:            req.RoomName,
		ParticipantIdentity: req.ParticipantIdentity,
	})

	return &ActionResponse{
		Result:  out.Result(),
		Outcome: string(out.Kind),
	}, nil
}

// EndCall ends the room's call with an optional closing line
func (s *SupportService) EndCall(ctx context.Context, room, participant, closing string) string {
	return s.sessions.End(ctx, room, participant, closing)
}

func (s *SupportService) endCall(ctx context.Context, req *ActionRequest) *ActionResponse {
	result := s.EndCall(ctx, req.RoomName, req.ParticipantIdentity, req.ClosingMessage)

	outcome := string(gateway.OutcomeSuccess)
	if strings.HasPrefix(result, session.ErrorResultPrefix) {
		outcome = outcomeTeardownFailed
	}
	return &ActionResponse{Result: result, Outcome: outcome}
}

// isDuplicate claims requestID and reports whether someone claimed it first.
// Redis being unavailable never blocks a request.
func (s *SupportService) isDuplicate(ctx context.Context, requestID string) bool {
	if s.idempotency == nil || requestID == "" {
		return false
	}

	claimed, err := s.idempotency.ClaimIdempotencyKey(ctx, fmt.Sprintf("action:%s", requestID), s.idempotencyTTL)
	if err != nil {
		s.logger.Warn("Failed to claim idempotency key",
			zap.String("request_id", requestID),
			zap.Error(err))
		return false
	}
	return !claimed
}

// PayloadString turns a transport payload into the raw text the gateway
// parses. A JSON string is unquoted; an object or array is passed through.
func PayloadString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var text string
	if raw[0] == '"' && json.Unmarshal(raw, &text) == nil {
		return text
	}
	return string(raw)
}
