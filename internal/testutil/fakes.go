package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/infrastructure/ports"
)

var _ ports.Logger = (*NoopLogger)(nil)

// NoopLogger discards all log output.
type NoopLogger struct{}

func (l *NoopLogger) Info(string, ...any)  {}
func (l *NoopLogger) Warn(string, ...any)  {}
func (l *NoopLogger) Error(string, ...any) {}
func (l *NoopLogger) Debug(string, ...any) {}

var _ ports.Clock = (*FixedClock)(nil)

// FixedClock returns a fixed time and never sleeps. Requested sleeps are
// recorded.
type FixedClock struct {
	T time.Time

	mu    sync.Mutex
	slept []time.Duration
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) SleepContext(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	return ctx.Err()
}

// Slept returns the durations passed to SleepContext.
func (c *FixedClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

var _ dispatch.LogSink = (*CollectingSink)(nil)

// CollectingSink keeps every appended log entry in memory.
type CollectingSink struct {
	mu      sync.Mutex
	entries []dispatch.LogEntry
}

func (s *CollectingSink) Append(e dispatch.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// Entries returns a copy of the collected entries in append order.
func (s *CollectingSink) Entries() []dispatch.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dispatch.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
