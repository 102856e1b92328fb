// Package session implements the call lifecycle: a call is Active until the
// terminal end_call action moves it to Ended, which speaks a closing line,
// waits for it to play out and then releases the call.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/internal/audit"
	"github.com/mohitjoer/customer-support-voice-agent/internal/gateway"
	"github.com/mohitjoer/customer-support-voice-agent/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SentinelOrderID is audited for end_call since it is not order scoped
const SentinelOrderID = "N/A"

// ErrorResultPrefix starts the result of an end_call whose teardown failed
const ErrorResultPrefix = "error ending call: "

const (
	DefaultGracePeriod     = 2 * time.Second
	defaultTeardownTimeout = 5 * time.Second
	outcomeTeardownFailed  = "teardown_failed"
	resultEnded            = "call ended"
	resultAlreadyEnded     = "call already ended"
	reasonAgentEnded       = "agent_ended"
)

// State of a call session
type State int

const (
	StateActive State = iota
	StateEnded
)

func (s State) String() string {
	if s == StateEnded {
		return "ended"
	}
	return "active"
}

// Speaker plays text to the caller
type Speaker interface {
	Say(ctx context.Context, room, text string) error
}

// Terminator releases the underlying call. It must be safe to call once per room.
type Terminator interface {
	Terminate(ctx context.Context, room string) error
}

// Session is one call
type Session struct {
	Room      string
	State     State
	StartedAt time.Time
	EndedAt   time.Time
}

// CallRecord summarizes one finished call
type CallRecord struct {
	Room                string
	ParticipantIdentity string
	Status              string
	StartedAt           time.Time
	EndedAt             time.Time
	Duration            time.Duration
	DisconnectReason    string
}

// CallRecorder persists call summaries
type CallRecorder interface {
	RecordCall(ctx context.Context, call CallRecord) error
}

// Manager tracks sessions by room
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// ended keeps the end time of rooms whose session was pruned
	ended map[string]time.Time

	speaker    Speaker
	terminator Terminator
	auditor    gateway.Auditor
	calls      CallRecorder
	grace      time.Duration
	wait       func(ctx context.Context, d time.Duration)
	logger     *zap.Logger
}

// NewManager creates a session manager. speaker may be nil.
func NewManager(speaker Speaker, terminator Terminator, auditor gateway.Auditor, grace time.Duration) *Manager {
	if grace < 0 {
		grace = DefaultGracePeriod
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		ended:      make(map[string]time.Time),
		speaker:    speaker,
		terminator: terminator,
		auditor:    auditor,
		grace:      grace,
		wait:       sleepContext,
		logger:     util.GetLogger(),
	}
}

// WithCallRecorder writes a CallRecord for every call that ends
func (m *Manager) WithCallRecorder(calls CallRecorder) *Manager {
	m.calls = calls
	return m
}

// Touch registers room as active if it is not known yet. A room that has
// ended stays ended.
func (m *Manager) Touch(room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ended[room]; ok {
		return
	}
	m.sessionLocked(room)
}

// IsEnded reports whether the room's call has ended
func (m *Manager) IsEnded(room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ended[room]; ok {
		return true
	}
	s, ok := m.sessions[room]
	return ok && s.State == StateEnded
}

func (m *Manager) get(room string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[room]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Prune drops the session data of calls that ended before cutoff. The room
// is still remembered as ended.
func (m *Manager) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for room, s := range m.sessions {
		if s.State == StateEnded && s.EndedAt.Before(cutoff) {
			m.ended[room] = s.EndedAt
			delete(m.sessions, room)
			removed++
		}
	}
	return removed
}

// End moves the room's session to Ended and tears the call down. Only the
// first call does any work; later calls return without side effects other
// than their audit entry. Teardown errors come back as the result string.
func (m *Manager) End(ctx context.Context, room, participant, closing string) string {
	ctx, span := util.StartSpan(ctx, "Session.End", attribute.String("room", room))
	defer span.End()

	ended, ok := m.transition(room)
	if !ok {
		m.logger.Info("Session already ended", zap.String("room", room))
		m.record(ctx, room, participant, string(gateway.OutcomeSuccess), resultAlreadyEnded, "")
		return resultAlreadyEnded
	}

	util.SessionsEndedTotal.Inc()
	result, err := m.teardown(ctx, room, closing)
	if err != nil {
		m.logger.Error("Session teardown failed", zap.String("room", room), zap.Error(err))
		m.record(ctx, room, participant, outcomeTeardownFailed, "", result)
		m.recordCall(ctx, ended, participant, outcomeTeardownFailed, err.Error())
		return result
	}

	m.logger.Info("Session ended", zap.String("room", room))
	m.record(ctx, room, participant, string(gateway.OutcomeSuccess), result, "")
	m.recordCall(ctx, ended, participant, StateEnded.String(), reasonAgentEnded)
	return result
}

// transition flips Active to Ended and reports whether this call did it
func (m *Manager) transition(room string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ended[room]; ok {
		return Session{}, false
	}
	s := m.sessionLocked(room)
	if s.State == StateEnded {
		return Session{}, false
	}
	s.State = StateEnded
	s.EndedAt = time.Now()
	return *s, true
}

func (m *Manager) sessionLocked(room string) *Session {
	s, ok := m.sessions[room]
	if !ok {
		s = &Session{Room: room, State: StateActive, StartedAt: time.Now()}
		m.sessions[room] = s
	}
	return s
}

func (m *Manager) teardown(ctx context.Context, room, closing string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("teardown panicked: %v", r)
			result = ErrorResultPrefix + err.Error()
		}
	}()

	if closing != "" && m.speaker != nil {
		sayCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTeardownTimeout)
		if err := m.speaker.Say(sayCtx, room, closing); err != nil {
			util.SessionTeardownFailuresTotal.WithLabelValues("say").Inc()
			m.logger.Warn("Failed to speak closing message", zap.String("room", room), zap.Error(err))
		}
		cancel()
	}

	m.wait(ctx, m.grace)

	if m.terminator == nil {
		return resultEnded, nil
	}

	// the call is ending regardless of the caller's context
	termCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTeardownTimeout)
	defer cancel()

	if err := m.terminator.Terminate(termCtx, room); err != nil {
		util.SessionTeardownFailuresTotal.WithLabelValues("terminate").Inc()
		return ErrorResultPrefix + err.Error(), err
	}
	return resultEnded, nil
}

func (m *Manager) record(ctx context.Context, room, participant, outcome, result, errMsg string) {
	if m.auditor == nil {
		return
	}

	entry := audit.Entry{
		Action:              string(gateway.ActionEndCall),
		OrderID:             SentinelOrderID,
		Outcome:             outcome,
		Error:               errMsg,
		RoomName:            room,
		ParticipantIdentity: participant,
	}
	if result != "" {
		entry.Result = map[string]interface{}{"status": result}
	}
	m.auditor.Record(ctx, entry)
}

// recordCall writes the call summary. Failures are logged and dropped.
func (m *Manager) recordCall(ctx context.Context, s Session, participant, status, reason string) {
	if m.calls == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTeardownTimeout)
	defer cancel()

	call := CallRecord{
		Room:                s.Room,
		ParticipantIdentity: participant,
		Status:              status,
		StartedAt:           s.StartedAt,
		EndedAt:             s.EndedAt,
		Duration:            s.EndedAt.Sub(s.StartedAt),
		DisconnectReason:    reason,
	}
	if err := m.calls.RecordCall(ctx, call); err != nil {
		m.logger.Error("Failed to record call session",
			zap.String("room", s.Room),
			zap.Error(err))
	}
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
