package dispatch

import (
	"context"
	"time"

	"github.com/sophialabs/mockexpect/internal/domain/expectation"
)

// Matcher is a pure predicate over a request. Implementations must not panic
// or fail for well-formed input; anything they cannot evaluate is a non-match.
type Matcher interface {
	Matches(req *Request) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(req *Request) bool

func (f MatcherFunc) Matches(req *Request) bool { return f(req) }

// Action produces a response. Process must not write to w before the delay
// it was resolved with has elapsed, and must not keep w after returning.
type Action interface {
	Process(ctx context.Context, req *Request, w ResponseSink) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, req *Request, w ResponseSink) error

func (f ActionFunc) Process(ctx context.Context, req *Request, w ResponseSink) error {
	return f(ctx, req, w)
}

// MatcherRegistry turns stored matcher configuration into runtime matchers.
type MatcherRegistry interface {
	Resolve(spec expectation.MatcherSpec) (Matcher, error)
}

// ActionRegistry turns stored action configuration into runtime actions,
// bound to the expectation's delay.
type ActionRegistry interface {
	Resolve(spec expectation.ActionSpec, delay time.Duration) (Action, error)
}

// LogSink receives dispatch log entries. Append must be safe for concurrent
// use and must not report failure to the caller.
type LogSink interface {
	Append(entry LogEntry)
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Logger is the logging surface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}
