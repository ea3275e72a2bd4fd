package usecases

import (
	"context"
	"fmt"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/domain/expectation"
	"github.com/sophialabs/mockexpect/internal/domain/trace"
	"github.com/sophialabs/mockexpect/internal/infrastructure/ports"
)

// HandleRequestUseCase dispatches one mock request against the current
// expectations of its project.
type HandleRequestUseCase struct {
	store    expectation.Store
	engine   *dispatch.Engine
	clock    ports.Clock
	logger   ports.Logger
	traceBuf *trace.RingBuffer[trace.Entry]
}

// NewHandleRequestUseCase creates a new use case.
func NewHandleRequestUseCase(
	store expectation.Store,
	engine *dispatch.Engine,
	clock ports.Clock,
	logger ports.Logger,
	traceBuf *trace.RingBuffer[trace.Entry],
) *HandleRequestUseCase {
	return &HandleRequestUseCase{
		store:    store,
		engine:   engine,
		clock:    clock,
		logger:   logger,
		traceBuf: traceBuf,
	}
}

// Execute reads the project's active expectations (fresh on every call, so
// edits apply to the next request) and hands them to the engine. An
// Unmatched outcome leaves w untouched.
func (uc *HandleRequestUseCase) Execute(ctx context.Context, req *dispatch.Request, w dispatch.ResponseSink) (dispatch.Outcome, error) {
	candidates, err := uc.store.ListActive(ctx, req.ProjectID)
	if err != nil {
		return dispatch.Outcome{}, fmt.Errorf("failed to load expectations for %s: %w", req.ProjectID, err)
	}
	candidates = uc.enforceOrder(req.ProjectID, candidates)

	outcome, err := uc.engine.Dispatch(ctx, req, candidates, w)

	entry := trace.Entry{
		Timestamp:  uc.clock.Now(),
		ProjectID:  req.ProjectID,
		Method:     req.Method,
		Path:       req.Path,
		MatchedID:  outcome.ExpectationID,
		Candidates: outcome.Candidates,
		Result:     outcome.Kind.String(),
	}
	if outcome.Kind == dispatch.Matched {
		entry.Result = dispatch.ResultOf(err)
	}
	if err != nil {
		entry.Error = err.Error()
	}
	uc.traceBuf.Add(entry)

	return outcome, err
}

// enforceOrder guarantees the engine's precondition even if a store hands
// back inactive or unsorted expectations.
func (uc *HandleRequestUseCase) enforceOrder(projectID string, list []*expectation.Expectation) []*expectation.Expectation {
	for _, e := range list {
		if !e.Activate {
			uc.logger.Warn("store returned inactive expectations, filtering", "project", projectID)
			return expectation.SortActive(list)
		}
	}
	if !expectation.IsSorted(list) {
		uc.logger.Warn("store returned unsorted expectations, sorting", "project", projectID)
		return expectation.SortActive(list)
	}
	return list
}

// Trace returns the most recent trace entries, optionally for one project.
func (uc *HandleRequestUseCase) Trace(projectID string, n int) []trace.Entry {
	if projectID == "" {
		return uc.traceBuf.Last(n)
	}
	return uc.traceBuf.LastWhere(n, func(e trace.Entry) bool { return e.ProjectID == projectID })
}
