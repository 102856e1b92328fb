package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/internal/models"
	"github.com/mohitjoer/customer-support-voice-agent/internal/store"
	"github.com/mohitjoer/customer-support-voice-agent/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrSinkClosed is returned by writes to a closed FileSink
var ErrSinkClosed = errors.New("audit sink closed")

// FileSink appends entries as JSON lines to a local file
type FileSink struct {
	mu      sync.Mutex
	enc     zapcore.Encoder
	out     zapcore.WriteSyncer
	closeFn func()
	closed  bool
}

// NewFileSink opens path in append mode
func NewFileSink(path string) (*FileSink, error) {
	enc, out, closeFn, err := util.OpenJSONLines(path)
	if err != nil {
		return nil, err
	}
	return &FileSink{enc: enc, out: out, closeFn: closeFn}, nil
}

// Name implements Sink
func (fs *FileSink) Name() string { return "file" }

// Write implements Sink
func (fs *FileSink) Write(ctx context.Context, entry Entry) error {
	buf, err := fs.enc.EncodeEntry(zapcore.Entry{}, []zapcore.Field{
		zap.String("id", entry.ID),
		zap.Time("timestamp", entry.Timestamp),
		zap.String("action", entry.Action),
		zap.String("order_id", entry.OrderID),
		zap.String("outcome", entry.Outcome),
		zap.Any("result", entry.Result),
		zap.String("error", entry.Error),
		zap.String("room_name", entry.RoomName),
		zap.String("participant_identity", entry.ParticipantIdentity),
	})
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	defer buf.Free()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.closed {
		return ErrSinkClosed
	}
	if _, err := fs.out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close flushes and closes the file
func (fs *FileSink) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.closed {
		return nil
	}
	fs.closed = true

	err := fs.out.Sync()
	if fs.closeFn != nil {
		fs.closeFn()
	}
	if err != nil {
		return fmt.Errorf("failed to sync audit file: %w", err)
	}
	return nil
}

type rowInserter interface {
	InsertAuditEntry(ctx context.Context, row *store.AuditRow) error
}

// SQLSink inserts entries into the queryable audit_entries table
type SQLSink struct {
	db rowInserter
}

// NewSQLSink creates a sink backed by db
func NewSQLSink(db rowInserter) *SQLSink {
	return &SQLSink{db: db}
}

// Name implements Sink
func (ss *SQLSink) Name() string { return "sql" }

// Write implements Sink
func (ss *SQLSink) Write(ctx context.Context, entry Entry) error {
	row := &store.AuditRow{
		ID:                  entry.ID,
		OccurredAt:          entry.Timestamp,
		Action:              entry.Action,
		OrderID:             entry.OrderID,
		Outcome:             entry.Outcome,
		Error:               nullString(entry.Error),
		RoomName:            nullString(entry.RoomName),
		ParticipantIdentity: nullString(entry.ParticipantIdentity),
	}

	if entry.Result != nil {
		result, err := json.Marshal(entry.Result)
		if err != nil {
			return fmt.Errorf("failed to encode audit result: %w", err)
		}
		row.Result = result
	}

	if err := ss.db.InsertAuditEntry(ctx, row); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type auditPublisher interface {
	PublishActionAudited(ctx context.Context, event *models.ActionAuditedEvent) error
}

// EventSink publishes entries to the event bus for reporting consumers
type EventSink struct {
	publisher auditPublisher
}

// NewEventSink creates a sink publishing through publisher
func NewEventSink(publisher auditPublisher) *EventSink {
	return &EventSink{publisher: publisher}
}

// Name implements Sink
func (es *EventSink) Name() string { return "kafka" }

// Write implements Sink
func (es *EventSink) Write(ctx context.Context, entry Entry) error {
	event := &models.ActionAuditedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeActionAudited,
			Timestamp: time.Now(),
		},
		EntryID:             entry.ID,
		Action:              entry.Action,
		OrderID:             entry.OrderID,
		Outcome:             entry.Outcome,
		Result:              entry.Result,
		Error:               entry.Error,
		RoomName:            entry.RoomName,
		ParticipantIdentity: entry.ParticipantIdentity,
	}
	return es.publisher.PublishActionAudited(ctx, event)
}

// MemorySink keeps entries in memory
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink creates an empty memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Name implements Sink
func (ms *MemorySink) Name() string { return "memory" }

// Write implements Sink
func (ms *MemorySink) Write(ctx context.Context, entry Entry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.entries = append(ms.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries
func (ms *MemorySink) Entries() []Entry {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]Entry, len(ms.entries))
	copy(out, ms.entries)
	return out
}
