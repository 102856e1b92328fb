// Package audit records every support action to a set of independent,
// best-effort sinks. A failing sink never affects the other sinks or the
// caller.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultWriteTimeout bounds each sink write when no timeout is configured
const DefaultWriteTimeout = 2 * time.Second

// Entry is one audited action invocation
type Entry struct {
	ID                  string                 `json:"id"`
	Timestamp           time.Time              `json:"timestamp"`
	Action              string                 `json:"action"`
	OrderID             string                 `json:"order_id"`
	Outcome             string                 `json:"outcome"`
	Result              map[string]interface{} `json:"result,omitempty"`
	Error               string                 `json:"error,omitempty"`
	RoomName            string                 `json:"room_name,omitempty"`
	ParticipantIdentity string                 `json:"participant_identity,omitempty"`
}

// Sink is a single audit destination
type Sink interface {
	Name() string
	Write(ctx context.Context, entry Entry) error
}

// Logger fans entries out to its sinks
type Logger struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewLogger creates an audit logger writing to sinks
func NewLogger(timeout time.Duration, sinks ...Sink) *Logger {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Logger{
		sinks:   sinks,
		timeout: timeout,
		logger:  util.GetLogger(),
		now:     time.Now,
	}
}

// Record writes entry to every sink, one attempt each. Record never fails and
// returns once all sinks finish or the write timeout elapses.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}

	util.AuditEntriesTotal.Inc()

	if len(l.sinks) == 0 {
		return
	}

	// the entry outlives a cancelled caller; only the write timeout bounds it
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, sink := range l.sinks {
		wg.Add(1)
		go func(sink Sink) {
			defer wg.Done()
			l.write(writeCtx, sink, entry)
		}(sink)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-writeCtx.Done():
		l.logger.Warn("Audit write timed out",
			zap.String("action", entry.Action),
			zap.String("order_id", entry.OrderID),
			zap.Duration("timeout", l.timeout))
	}
}

func (l *Logger) write(ctx context.Context, sink Sink, entry Entry) {
	start := time.Now()
	err := safeWrite(ctx, sink, entry)
	util.AuditSinkLatency.WithLabelValues(sink.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		util.AuditSinkFailuresTotal.WithLabelValues(sink.Name()).Inc()
		l.logger.Error("Failed to write audit entry",
			zap.String("sink", sink.Name()),
			zap.String("entry_id", entry.ID),
			zap.String("action", entry.Action),
			zap.String("order_id", entry.OrderID),
			zap.Error(err))
	}
}

func safeWrite(ctx context.Context, sink Sink, entry Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Write(ctx, entry)
}
