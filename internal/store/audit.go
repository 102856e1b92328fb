package store

import (
	"context"
	"database/sql"
	"time"
)

// AuditRow is a persisted audit entry
type AuditRow struct {
	ID                  string         `db:"id"`
	OccurredAt          time.Time      `db:"occurred_at"`
	Action              string         `db:"action"`
	OrderID             string         `db:"order_id"`
	Outcome             string         `db:"outcome"`
	Result              []byte         `db:"result"`
	Error               sql.NullString `db:"error"`
	RoomName            sql.NullString `db:"room_name"`
	ParticipantIdentity sql.NullString `db:"participant_identity"`
}

// InsertAuditEntry appends an audit row. Rows are never updated or deleted.
func (s *Store) InsertAuditEntry(ctx context.Context, row *AuditRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_entries
			(id, occurred_at, action, order_id, outcome, result, error, room_name, participant_identity)
		VALUES
			(:id, :occurred_at, :action, :order_id, :outcome, :result, :error, :room_name, :participant_identity)`,
		row)
	return err
}
