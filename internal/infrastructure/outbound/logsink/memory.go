// Package logsink stores dispatch log entries: in memory for the admin API,
// and optionally in a JSONL file and Redis through an asynchronous fan-out.
package logsink

import (
	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/domain/trace"
)

var _ dispatch.LogSink = (*Memory)(nil)

// Memory keeps the most recent entries of all projects.
type Memory struct {
	buf *trace.RingBuffer[dispatch.LogEntry]
}

// NewMemory creates a sink holding up to size entries.
func NewMemory(size int) *Memory {
	return &Memory{buf: trace.NewRingBuffer[dispatch.LogEntry](size)}
}

func (m *Memory) Append(e dispatch.LogEntry) {
	m.buf.Add(e)
}

// Query returns up to q.Limit of the most recent matching entries, oldest
// first.
func (m *Memory) Query(q Query) ([]dispatch.LogEntry, error) {
	match, err := q.compile()
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = m.buf.Count()
	}
	return m.buf.LastWhere(limit, match), nil
}

// Count returns the number of entries held.
func (m *Memory) Count() int {
	return m.buf.Count()
}
