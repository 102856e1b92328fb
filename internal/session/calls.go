package session

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mohitjoer/customer-support-voice-agent/internal/store"

	"github.com/google/uuid"
)

type callSessionInserter interface {
	InsertCallSession(ctx context.Context, row *store.CallSessionRow) error
}

// SQLCallRecorder writes call summaries to the call_sessions table
type SQLCallRecorder struct {
	db callSessionInserter
}

// NewSQLCallRecorder creates a recorder over db
func NewSQLCallRecorder(db callSessionInserter) *SQLCallRecorder {
	return &SQLCallRecorder{db: db}
}

// RecordCall implements CallRecorder
func (r *SQLCallRecorder) RecordCall(ctx context.Context, call CallRecord) error {
	row := &store.CallSessionRow{
		ID:                  uuid.New().String(),
		RoomName:            call.Room,
		ParticipantIdentity: sql.NullString{String: call.ParticipantIdentity, Valid: call.ParticipantIdentity != ""},
		CallStatus:          call.Status,
		StartedAt:           call.StartedAt.UTC(),
		EndedAt:             call.EndedAt.UTC(),
		DurationSeconds:     call.Duration.Seconds(),
		DisconnectReason:    sql.NullString{String: call.DisconnectReason, Valid: call.DisconnectReason != ""},
	}

	if err := r.db.InsertCallSession(ctx, row); err != nil {
		return fmt.Errorf("failed to insert call session: %w", err)
	}
	return nil
}
