package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sophialabs/mockexpect/internal/domain/expectation"
	"github.com/sophialabs/mockexpect/internal/domain/trace"
)

// Engine selects at most one expectation per request and runs its first
// action. It keeps no per-request state between calls and never mutates the
// expectations it is given.
type Engine struct {
	matchers MatcherRegistry
	actions  ActionRegistry
	sink     LogSink
	clock    Clock
	logger   Logger
}

// NewEngine creates an Engine.
func NewEngine(matchers MatcherRegistry, actions ActionRegistry, sink LogSink, clock Clock, logger Logger) *Engine {
	return &Engine{
		matchers: matchers,
		actions:  actions,
		sink:     sink,
		clock:    clock,
		logger:   logger,
	}
}

// Selection is the result of the synchronous candidate scan.
type Selection struct {
	Winner     *expectation.Expectation
	Candidates []trace.CandidateResult
}

// Select scans candidates in the given order and returns the first whose
// matchers all pass and which has an action to run. Candidates must already
// be active and sorted (see expectation.SortActive). Select never blocks.
func (e *Engine) Select(req *Request, candidates []*expectation.Expectation) Selection {
	sel := Selection{
		Candidates: make([]trace.CandidateResult, 0, len(candidates)),
	}

	for _, exp := range candidates {
		cr := e.evaluate(req, exp)
		if cr.Matched && len(exp.Actions) == 0 {
			cr.Matched = false
			cr.Skipped = "no actions configured"
		}
		sel.Candidates = append(sel.Candidates, cr)
		if cr.Matched {
			sel.Winner = exp
			return sel
		}
	}

	return sel
}

// evaluate ANDs the expectation's matchers, stopping at the first failure.
func (e *Engine) evaluate(req *Request, exp *expectation.Expectation) trace.CandidateResult {
	cr := trace.CandidateResult{
		ExpectationID:   exp.ID,
		ExpectationName: exp.Name,
		Matched:         true,
	}

	for _, spec := range exp.Matchers {
		m, err := e.matchers.Resolve(spec)
		if err != nil {
			e.logger.Warn("matcher could not be resolved", "expectation", exp.ID, "matcher", spec.ID, "kind", spec.Kind, "error", err)
			cr.Matched = false
			cr.FailedMatcherID = spec.ID
			cr.FailedKind = spec.Kind
			cr.FailedReason = "unresolved matcher: " + err.Error()
			return cr
		}
		if !m.Matches(req) {
			cr.Matched = false
			cr.FailedMatcherID = spec.ID
			cr.FailedKind = spec.Kind
			cr.FailedReason = describeFailure(spec)
			return cr
		}
	}

	return cr
}

func describeFailure(spec expectation.MatcherSpec) string {
	op := spec.Operator
	if op == "" {
		op = "equal"
	}
	if spec.Key != "" {
		return fmt.Sprintf("%s %q not %s %q", spec.Kind, spec.Key, op, spec.Value)
	}
	return fmt.Sprintf("%s not %s %q", spec.Kind, op, spec.Value)
}

// Dispatch selects an expectation for req and executes its first action
// against w. An Unmatched outcome writes nothing and logs nothing; the
// caller owns the fallback response. When the action fails the response log
// entry is still written and the classified error is returned.
//
// ctx bounds the action: a deadline is reported as ErrActionTimeout and a
// cancellation as ErrAborted.
func (e *Engine) Dispatch(ctx context.Context, req *Request, candidates []*expectation.Expectation, w ResponseSink) (Outcome, error) {
	sel := e.Select(req, candidates)
	out := Outcome{Candidates: sel.Candidates}
	if sel.Winner == nil {
		e.logger.Debug("no expectation matched", "project", req.ProjectID, "method", req.Method, "path", req.Path, "candidates", len(candidates))
		return out, nil
	}

	exp := sel.Winner
	out.Kind = Matched
	out.ExpectationID = exp.ID

	reqEntry := e.requestEntry(req, exp)
	e.sink.Append(reqEntry)

	rec := newRecordingSink(w)
	err := e.execute(ctx, req, exp, rec)

	out.ResponseStarted = rec.started()
	out.Status = rec.status
	e.sink.Append(e.responseEntry(reqEntry, rec, err))

	if err != nil {
		return out, err
	}
	return out, nil
}

func (e *Engine) execute(ctx context.Context, req *Request, exp *expectation.Expectation, w *recordingSink) error {
	action, err := e.actions.Resolve(exp.Actions[0], exp.Delay)
	if err != nil {
		return fmt.Errorf("%w: expectation %s: %w", ErrUnresolvedAction, exp.ID, err)
	}

	if err := action.Process(ctx, req, w); err != nil {
		return classify(ctx, err)
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrAborted, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrActionTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrActionFailed, err)
	}
}

func (e *Engine) requestEntry(req *Request, exp *expectation.Expectation) LogEntry {
	entry := LogEntry{
		ID:            uuid.NewString(),
		DispatchID:    uuid.NewString(),
		Phase:         PhaseRequest,
		ProjectID:     req.ProjectID,
		ExpectationID: exp.ID,
		Method:        req.Method,
		Path:          req.Path,
		Query:         req.Query.Encode(),
		Headers:       cloneHeader(req.Headers),
		RemoteAddr:    req.RemoteAddr,
		ReceivedAt:    req.ReceivedAt,
	}
	if req.BodyAvailable {
		entry.Body = string(req.Body)
	}
	return entry
}

func (e *Engine) responseEntry(reqEntry LogEntry, w *recordingSink, err error) LogEntry {
	completed := e.clock.Now()
	entry := reqEntry
	entry.ID = uuid.NewString()
	entry.Phase = PhaseResponse
	entry.Body = ""
	entry.CompletedAt = &completed
	entry.Status = w.status
	entry.ResponseHeaders = cloneHeader(w.Header())
	entry.BytesWritten = w.written
	entry.Result = ResultOf(err)
	if err != nil {
		entry.Error = err.Error()
	}
	return entry
}
