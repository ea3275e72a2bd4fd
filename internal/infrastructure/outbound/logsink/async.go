package logsink

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/infrastructure/ports"
)

var (
	_ dispatch.LogSink = (*Async)(nil)
	_ dispatch.LogSink = Multi(nil)
)

// Writer persists entries and reports failures.
type Writer interface {
	Write(ctx context.Context, e dispatch.LogEntry) error
}

// Async decouples dispatch from slow writers. Append never blocks: when the
// buffer is full the entry is dropped and counted. Drops and write failures
// are each logged at most once per warnEvery.
type Async struct {
	writers      []Writer
	logger       ports.Logger
	writeTimeout time.Duration
	entries      chan dispatch.LogEntry

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
	failed  atomic.Uint64

	warnDropped rate.Sometimes
	warnFailed  rate.Sometimes
}

const warnEvery = 10 * time.Second

// NewAsync starts a fan-out to writers with a buffer of size entries.
func NewAsync(size int, logger ports.Logger, writers ...Writer) *Async {
	if size <= 0 {
		size = 1024
	}
	a := &Async{
		writers:      writers,
		logger:       logger,
		writeTimeout: 2 * time.Second,
		entries:      make(chan dispatch.LogEntry, size),
		done:         make(chan struct{}),
		warnDropped:  rate.Sometimes{First: 1, Interval: warnEvery},
		warnFailed:   rate.Sometimes{First: 1, Interval: warnEvery},
	}
	go a.run()
	return a
}

func (a *Async) Append(e dispatch.LogEntry) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.entries <- e:
	default:
		n := a.dropped.Add(1)
		a.warnDropped.Do(func() {
			a.logger.Warn("log buffer full, dropping entries", "dropped_total", n)
		})
	}
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.entries {
		for _, w := range a.writers {
			ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
			err := w.Write(ctx, e)
			cancel()
			if err != nil {
				n := a.failed.Add(1)
				a.warnFailed.Do(func() {
					a.logger.Warn("log sink write failed", "error", err, "failed_total", n)
				})
			}
		}
	}
}

// Dropped returns how many entries were discarded because the buffer was full.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Failed returns how many writes returned an error.
func (a *Async) Failed() uint64 { return a.failed.Load() }

// Close stops accepting entries, drains the buffer, and closes writers that
// implement io.Closer. It returns ctx.Err() if draining outlives ctx.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.entries)
	a.mu.Unlock()

	select {
	case <-a.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var firstErr error
	for _, w := range a.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Multi appends to every sink in order.
type Multi []dispatch.LogSink

func (m Multi) Append(e dispatch.LogEntry) {
	for _, s := range m {
		s.Append(e)
	}
}
