package logsink_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/logsink"
	"github.com/sophialabs/mockexpect/internal/testutil"
)

func entry(project, phase string, status int) dispatch.LogEntry {
	return dispatch.LogEntry{
		ID:         phase + "-" + project,
		DispatchID: "d-" + project,
		Phase:      phase,
		ProjectID:  project,
		Method:     "GET",
		Path:       "/orders",
		Status:     status,
		ReceivedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemory_QueryByProjectAndConditions(t *testing.T) {
	m := logsink.NewMemory(10)
	m.Append(entry("shop", dispatch.PhaseRequest, 0))
	m.Append(entry("shop", dispatch.PhaseResponse, 200))
	m.Append(entry("bank", dispatch.PhaseRequest, 0))
	m.Append(entry("bank", dispatch.PhaseResponse, 502))

	got, err := m.Query(logsink.Query{ProjectID: "shop"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, dispatch.PhaseRequest, got[0].Phase, "oldest first")

	got, err = m.Query(logsink.Query{Conditions: []logsink.Condition{
		{Field: "phase", Operator: "equal", Value: "response"},
		{Field: "status", Operator: "greater", Value: "499"},
	}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bank", got[0].ProjectID)

	got, err = m.Query(logsink.Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 502, got[0].Status, "limit keeps the newest")
}

func TestMemory_InvalidQuery(t *testing.T) {
	m := logsink.NewMemory(10)
	bad := []logsink.Condition{
		{Field: "colour", Operator: "equal", Value: "x"},
		{Field: "path", Operator: "between", Value: "x"},
		{Field: "status", Operator: "equal", Value: "ok"},
		{Field: "status", Operator: "contains", Value: "2"},
	}
	for _, c := range bad {
		_, err := m.Query(logsink.Query{Conditions: []logsink.Condition{c}})
		assert.ErrorIs(t, err, logsink.ErrInvalidQuery, "%+v", c)
	}
}

func TestQuery_Apply(t *testing.T) {
	entries := []dispatch.LogEntry{
		entry("shop", dispatch.PhaseResponse, 200),
		entry("shop", dispatch.PhaseResponse, 404),
		entry("shop", dispatch.PhaseResponse, 500),
	}

	got, err := logsink.Query{
		Limit:      1,
		Conditions: []logsink.Condition{{Field: "status", Operator: "greater", Value: "299"}},
	}.Apply(entries)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 500, got[0].Status)

	_, err = logsink.Query{Conditions: []logsink.Condition{{Field: "nope", Operator: "equal"}}}.Apply(entries)
	assert.ErrorIs(t, err, logsink.ErrInvalidQuery)
}

func TestParseCondition(t *testing.T) {
	c, err := logsink.ParseCondition("path:contains:/a:b")
	require.NoError(t, err)
	assert.Equal(t, logsink.Condition{Field: "path", Operator: "contains", Value: "/a:b"}, c)

	_, err = logsink.ParseCondition("status:200")
	assert.ErrorIs(t, err, logsink.ErrInvalidQuery)
}

func TestFile_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.jsonl")
	f, err := logsink.OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, f.Write(context.Background(), entry("shop", dispatch.PhaseRequest, 0)))
	require.NoError(t, f.Write(context.Background(), entry("shop", dispatch.PhaseResponse, 201)))
	require.NoError(t, f.Close())

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()

	var lines []dispatch.LogEntry
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		var e dispatch.LogEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		lines = append(lines, e)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, 201, lines[1].Status)
}

type recordingWriter struct {
	mu     sync.Mutex
	got    []dispatch.LogEntry
	err    error
	block  chan struct{}
	closed bool
}

func (w *recordingWriter) Write(_ context.Context, e dispatch.LogEntry) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.got = append(w.got, e)
	return w.err
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) entries() []dispatch.LogEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]dispatch.LogEntry(nil), w.got...)
}

func TestAsync_FansOutAndDrainsOnClose(t *testing.T) {
	a, b := &recordingWriter{}, &recordingWriter{}
	sink := logsink.NewAsync(16, &testutil.NoopLogger{}, a, b)

	for i := 0; i < 5; i++ {
		sink.Append(entry("shop", dispatch.PhaseRequest, i))
	}
	require.NoError(t, sink.Close(context.Background()))

	assert.Len(t, a.entries(), 5)
	assert.Len(t, b.entries(), 5)
	assert.True(t, a.closed)
	assert.Equal(t, 3, a.entries()[3].Status, "order preserved")

	sink.Append(entry("shop", dispatch.PhaseRequest, 99))
	assert.Len(t, a.entries(), 5, "append after close is ignored")
}

func TestAsync_DropsWhenFull(t *testing.T) {
	w := &recordingWriter{block: make(chan struct{})}
	sink := logsink.NewAsync(1, &testutil.NoopLogger{}, w)

	for i := 0; i < 10; i++ {
		sink.Append(entry("shop", dispatch.PhaseRequest, i))
	}
	assert.GreaterOrEqual(t, sink.Dropped(), uint64(8))

	close(w.block)
	require.NoError(t, sink.Close(context.Background()))
	assert.LessOrEqual(t, len(w.entries()), 2)
}

func TestAsync_CountsFailures(t *testing.T) {
	w := &recordingWriter{err: errors.New("disk full")}
	sink := logsink.NewAsync(4, &testutil.NoopLogger{}, w)
	sink.Append(entry("shop", dispatch.PhaseRequest, 0))
	sink.Append(entry("shop", dispatch.PhaseResponse, 200))
	require.NoError(t, sink.Close(context.Background()))

	assert.Equal(t, uint64(2), sink.Failed())
}

type warnLogger struct {
	testutil.NoopLogger
	mu    sync.Mutex
	warns []string
}

func (l *warnLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *warnLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

func TestAsync_DropAndFailureWarningsAreThrottledSeparately(t *testing.T) {
	logger := &warnLogger{}
	w := &recordingWriter{block: make(chan struct{}), err: errors.New("disk full")}
	sink := logsink.NewAsync(1, logger, w)

	for i := 0; i < 5; i++ {
		sink.Append(entry("shop", dispatch.PhaseRequest, i))
	}
	require.Positive(t, sink.Dropped())

	close(w.block)
	require.NoError(t, sink.Close(context.Background()))
	require.Positive(t, sink.Failed())

	msgs := logger.messages()
	assert.Contains(t, msgs, "log buffer full, dropping entries")
	assert.Contains(t, msgs, "log sink write failed")
	assert.Len(t, msgs, 2, "each kind warns once per interval")
}

func TestMulti_AppendsToAll(t *testing.T) {
	m1, m2 := logsink.NewMemory(4), logsink.NewMemory(4)
	logsink.Multi{m1, m2}.Append(entry("shop", dispatch.PhaseRequest, 0))
	assert.Equal(t, 1, m1.Count())
	assert.Equal(t, 1, m2.Count())
}
