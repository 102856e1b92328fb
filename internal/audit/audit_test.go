package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/internal/models"
	"github.com/mohitjoer/customer-support-voice-agent/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type failingSink struct{}

func (failingSink) Name() string { return "failing" }
func (failingSink) Write(ctx context.Context, entry Entry) error {
	return errors.New("disk full")
}

type panickingSink struct{}

func (panickingSink) Name() string { return "panicking" }
func (panickingSink) Write(ctx context.Context, entry Entry) error {
	panic("nil writer")
}

type blockingSink struct{}

func (blockingSink) Name() string { return "blocking" }
func (blockingSink) Write(ctx context.Context, entry Entry) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	sink := NewMemorySink()
	l := NewLogger(time.Second, sink)

	l.Record(context.Background(), Entry{Action: "check_order_status", OrderID: "HT1004", Outcome: "success"})

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
	assert.Equal(t, time.UTC, entries[0].Timestamp.Location())
}

func TestFailingSinkDoesNotAffectOthers(t *testing.T) {
	good := NewMemorySink()
	l := NewLogger(time.Second, failingSink{}, panickingSink{}, good)

	assert.NotPanics(t, func() {
		l.Record(context.Background(), Entry{Action: "cancel_order", OrderID: "HT1004", Outcome: "success"})
	})
	assert.Len(t, good.Entries(), 1)
}

func TestRecordIsBoundedByTimeout(t *testing.T) {
	good := NewMemorySink()
	l := NewLogger(50*time.Millisecond, blockingSink{}, good)

	start := time.Now()
	l.Record(context.Background(), Entry{Action: "track_shipment", OrderID: "HT1004", Outcome: "success"})

	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, good.Entries(), 1)
}

func TestRecordSurvivesCancelledCaller(t *testing.T) {
	sink := NewMemorySink()
	l := NewLogger(time.Second, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Record(ctx, Entry{Action: "get_invoice", OrderID: "HT1004", Outcome: "success"})

	assert.Len(t, sink.Entries(), 1)
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	fs, err := NewFileSink(path)
	require.NoError(t, err)

	l := NewLogger(time.Second, fs)
	l.Record(context.Background(), Entry{
		Action:   "cancel_order",
		OrderID:  "HT1004",
		Outcome:  "success",
		Result:   map[string]interface{}{"order_id": "HT1004", "status": "Cancelled"},
		RoomName: "call-1",
	})
	l.Record(context.Background(), Entry{
		Action:  "cancel_order",
		OrderID: "HT9999",
		Outcome: "not_found",
		Error:   "No order found with ID HT9999.",
	})
	require.NoError(t, fs.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)

	assert.Equal(t, "HT1004", lines[0]["order_id"])
	assert.Equal(t, "success", lines[0]["outcome"])
	assert.Equal(t, "call-1", lines[0]["room_name"])
	assert.Equal(t, map[string]interface{}{"order_id": "HT1004", "status": "Cancelled"}, lines[0]["result"])
	assert.NotEmpty(t, lines[0]["id"])

	assert.Equal(t, "not_found", lines[1]["outcome"])
	assert.Equal(t, "No order found with ID HT9999.", lines[1]["error"])
}

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) { return 0, errors.New("no space left on device") }

func TestFileSinkReportsWriteErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	fs, err := NewFileSink(path)
	require.NoError(t, err)
	defer fs.Close()

	entry := Entry{Action: "cancel_order", OrderID: "HT1004", Outcome: "success"}

	broken := &FileSink{enc: fs.enc, out: zapcore.AddSync(brokenWriter{})}
	err = broken.Write(context.Background(), entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no space left on device")

	require.NoError(t, fs.Close())
	assert.ErrorIs(t, fs.Write(context.Background(), entry), ErrSinkClosed)
}

type captureInserter struct {
	rows []*store.AuditRow
}

func (ci *captureInserter) InsertAuditEntry(ctx context.Context, row *store.AuditRow) error {
	ci.rows = append(ci.rows, row)
	return nil
}

func TestSQLSinkMapsEntry(t *testing.T) {
	db := &captureInserter{}
	l := NewLogger(time.Second, NewSQLSink(db))

	l.Record(context.Background(), Entry{
		Action:  "modify_order",
		OrderID: "HT1004",
		Outcome: "success",
		Result:  map[string]interface{}{"updated_fields": []string{"status"}},
	})

	require.Len(t, db.rows, 1)
	row := db.rows[0]
	assert.Equal(t, "modify_order", row.Action)
	assert.Equal(t, "HT1004", row.OrderID)
	assert.False(t, row.Error.Valid)
	assert.False(t, row.RoomName.Valid)
	assert.JSONEq(t, `{"updated_fields":["status"]}`, string(row.Result))
}

type capturePublisher struct {
	events []*models.ActionAuditedEvent
}

func (cp *capturePublisher) PublishActionAudited(ctx context.Context, event *models.ActionAuditedEvent) error {
	cp.events = append(cp.events, event)
	return nil
}

func TestEventSinkPublishesAuditedEvent(t *testing.T) {
	pub := &capturePublisher{}
	l := NewLogger(time.Second, NewEventSink(pub))

	l.Record(context.Background(), Entry{
		Action:              "end_call",
		OrderID:             "N/A",
		Outcome:             "success",
		RoomName:            "call-1",
		ParticipantIdentity: "sip_caller",
	})

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.Equal(t, models.EventTypeActionAudited, event.EventType)
	assert.NotEmpty(t, event.EntryID)
	assert.Equal(t, "N/A", event.OrderID)
	assert.Equal(t, "call-1", event.RoomName)
	assert.Equal(t, "sip_caller", event.ParticipantIdentity)
}
