package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/internal/audit"
	"github.com/mohitjoer/customer-support-voice-agent/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeSpeaker struct {
	rec *recorder
	err error
}

func (fs *fakeSpeaker) Say(ctx context.Context, room, text string) error {
	fs.rec.add("say:" + room + ":" + text)
	return fs.err
}

type fakeTerminator struct {
	rec *recorder
	err error
}

func (ft *fakeTerminator) Terminate(ctx context.Context, room string) error {
	ft.rec.add("terminate:" + room)
	return ft.err
}

func newTestManager(speakErr, termErr error) (*Manager, *recorder, *audit.MemorySink) {
	rec := &recorder{}
	sink := audit.NewMemorySink()
	m := NewManager(
		&fakeSpeaker{rec: rec, err: speakErr},
		&fakeTerminator{rec: rec, err: termErr},
		audit.NewLogger(time.Second, sink),
		time.Second,
	)
	m.wait = func(ctx context.Context, d time.Duration) { rec.add("wait:" + d.String()) }
	return m, rec, sink
}

func TestEndTransitionsActiveToEnded(t *testing.T) {
	m, rec, sink := newTestManager(nil, nil)
	m.Touch("call-1")

	s, ok := m.get("call-1")
	require.True(t, ok)
	assert.Equal(t, StateActive, s.State)

	result := m.End(context.Background(), "call-1", "sip_caller", "Thanks for calling High Time Store. Goodbye!")

	assert.Equal(t, "call ended", result)
	assert.True(t, m.IsEnded("call-1"))
	assert.Equal(t, []string{
		"say:call-1:Thanks for calling High Time Store. Goodbye!",
		"wait:1s",
		"terminate:call-1",
	}, rec.list())

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "end_call", entries[0].Action)
	assert.Equal(t, SentinelOrderID, entries[0].OrderID)
	assert.Equal(t, "success", entries[0].Outcome)
	assert.Equal(t, "call-1", entries[0].RoomName)
	assert.Equal(t, "sip_caller", entries[0].ParticipantIdentity)
}

func TestEndIsIdempotent(t *testing.T) {
	m, rec, sink := newTestManager(nil, nil)

	first := m.End(context.Background(), "call-2", "", "Bye")
	second := m.End(context.Background(), "call-2", "", "Bye")

	assert.Equal(t, "call ended", first)
	assert.Equal(t, "call already ended", second)
	assert.Len(t, rec.list(), 3, "second end must not speak or terminate again")
	assert.Len(t, sink.Entries(), 2)
}

func TestEndConcurrentCallsTearDownOnce(t *testing.T) {
	m, rec, _ := newTestManager(nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.End(context.Background(), "call-3", "", "")
		}()
	}
	wg.Wait()

	terminations := 0
	for _, call := range rec.list() {
		if call == "terminate:call-3" {
			terminations++
		}
	}
	assert.Equal(t, 1, terminations)
}

func TestEndProceedsWhenSpeechFails(t *testing.T) {
	m, rec, _ := newTestManager(errors.New("speech channel closed"), nil)

	result := m.End(context.Background(), "call-4", "", "Goodbye")

	assert.Equal(t, "call ended", result)
	assert.Contains(t, rec.list(), "terminate:call-4")
}

func TestEndWithoutClosingSkipsSpeech(t *testing.T) {
	m, rec, _ := newTestManager(nil, nil)

	m.End(context.Background(), "call-5", "", "")

	assert.Equal(t, []string{"wait:1s", "terminate:call-5"}, rec.list())
}

func TestEndReturnsTeardownErrorAsString(t *testing.T) {
	m, _, sink := newTestManager(nil, errors.New("room service unavailable"))

	result := m.End(context.Background(), "call-6", "", "Bye")

	assert.Equal(t, "error ending call: room service unavailable", result)
	assert.True(t, m.IsEnded("call-6"))

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "teardown_failed", entries[0].Outcome)
	assert.Equal(t, result, entries[0].Error)
}

type panickingTerminator struct{}

func (panickingTerminator) Terminate(ctx context.Context, room string) error {
	panic("nil room client")
}

func TestEndRecoversTeardownPanic(t *testing.T) {
	m := NewManager(nil, panickingTerminator{}, nil, 0)

	var result string
	assert.NotPanics(t, func() {
		result = m.End(context.Background(), "call-7", "", "Bye")
	})
	assert.Contains(t, result, "error ending call")
	assert.True(t, m.IsEnded("call-7"))
}

func TestSleepContextStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	sleepContext(ctx, time.Minute)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPruneForgetsOldEndedSessions(t *testing.T) {
	m, _, _ := newTestManager(nil, nil)
	m.Touch("active")
	m.End(context.Background(), "ended", "", "")

	removed := m.Prune(time.Now().Add(time.Minute))

	assert.Equal(t, 1, removed)
	_, ok := m.get("ended")
	assert.False(t, ok)
	assert.True(t, m.IsEnded("ended"))
	_, ok = m.get("active")
	assert.True(t, ok)
}

func TestEndAfterPruneStaysEnded(t *testing.T) {
	m, rec, sink := newTestManager(nil, nil)

	first := m.End(context.Background(), "call-p", "", "Bye")
	m.Prune(time.Now().Add(time.Minute))
	m.Touch("call-p")
	second := m.End(context.Background(), "call-p", "", "Bye")

	assert.Equal(t, "call ended", first)
	assert.Equal(t, "call already ended", second)
	assert.Equal(t, []string{"say:call-p:Bye", "wait:1s", "terminate:call-p"}, rec.list())
	assert.Len(t, sink.Entries(), 2)
}

type fakeCallRecorder struct {
	mu    sync.Mutex
	calls []CallRecord
	err   error
}

func (f *fakeCallRecorder) RecordCall(ctx context.Context, call CallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func TestEndRecordsCallSession(t *testing.T) {
	m, _, _ := newTestManager(nil, nil)
	calls := &fakeCallRecorder{}
	m.WithCallRecorder(calls)

	m.Touch("call-8")
	m.End(context.Background(), "call-8", "sip_caller", "Bye")
	m.End(context.Background(), "call-8", "sip_caller", "Bye")

	require.Len(t, calls.calls, 1, "only the first end writes a call session")
	call := calls.calls[0]
	assert.Equal(t, "call-8", call.Room)
	assert.Equal(t, "sip_caller", call.ParticipantIdentity)
	assert.Equal(t, "ended", call.Status)
	assert.Equal(t, "agent_ended", call.DisconnectReason)
	assert.False(t, call.StartedAt.IsZero())
	assert.False(t, call.EndedAt.Before(call.StartedAt))
	assert.Equal(t, call.EndedAt.Sub(call.StartedAt), call.Duration)
}

func TestEndRecordsFailedTeardown(t *testing.T) {
	m, _, _ := newTestManager(nil, errors.New("room service unavailable"))
	calls := &fakeCallRecorder{err: errors.New("insert failed")}
	m.WithCallRecorder(calls)

	result := m.End(context.Background(), "call-9", "", "")

	assert.Equal(t, "error ending call: room service unavailable", result)
	require.Len(t, calls.calls, 1)
	assert.Equal(t, "teardown_failed", calls.calls[0].Status)
	assert.Equal(t, "room service unavailable", calls.calls[0].DisconnectReason)
}

type captureCallInserter struct {
	rows []*store.CallSessionRow
}

func (c *captureCallInserter) InsertCallSession(ctx context.Context, row *store.CallSessionRow) error {
	c.rows = append(c.rows, row)
	return nil
}

func TestSQLCallRecorderMapsRecord(t *testing.T) {
	db := &captureCallInserter{}
	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	err := NewSQLCallRecorder(db).RecordCall(context.Background(), CallRecord{
		Room:             "call-10",
		Status:           "ended",
		StartedAt:        started,
		EndedAt:          started.Add(90 * time.Second),
		Duration:         90 * time.Second,
		DisconnectReason: "agent_ended",
	})
	require.NoError(t, err)

	require.Len(t, db.rows, 1)
	row := db.rows[0]
	assert.NotEmpty(t, row.ID)
	assert.Equal(t, "call-10", row.RoomName)
	assert.False(t, row.ParticipantIdentity.Valid)
	assert.Equal(t, 90.0, row.DurationSeconds)
	assert.Equal(t, "agent_ended", row.DisconnectReason.String)
}
