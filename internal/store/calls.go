package store

import (
	"context"
	"database/sql"
	"time"
)

// CallSessionRow is a persisted summary of one finished call
type CallSessionRow struct {
	ID                  string         `db:"id"`
	RoomName            string         `db:"room_name"`
	ParticipantIdentity sql.NullString `db:"participant_identity"`
	CallStatus          string         `db:"call_status"`
	StartedAt           time.Time      `db:"started_at"`
	EndedAt             time.Time      `db:"ended_at"`
	DurationSeconds     float64        `db:"duration_seconds"`
	DisconnectReason    sql.NullString `db:"disconnect_reason"`
}

// InsertCallSession appends a call session row
func (s *Store) InsertCallSession(ctx context.Context, row *CallSessionRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO call_sessions
			(id, room_name, participant_identity, call_status, started_at, ended_at, duration_seconds, disconnect_reason)
		VALUES
			(:id, :room_name, :participant_identity, :call_status, :started_at, :ended_at, :duration_seconds, :disconnect_reason)`,
		row)
	return err
}
