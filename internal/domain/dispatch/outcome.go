package dispatch

import (
	"errors"

	"github.com/sophialabs/mockexpect/internal/domain/trace"
)

// Failure classes returned by Engine.Dispatch. They wrap the underlying cause.
var (
	ErrActionFailed     = errors.New("action failed")
	ErrActionTimeout    = errors.New("action timed out")
	ErrAborted          = errors.New("dispatch aborted by client")
	ErrUnresolvedAction = errors.New("action could not be resolved")
)

// OutcomeKind is the terminal state of the selection state machine.
type OutcomeKind int

const (
	Unmatched OutcomeKind = iota
	Matched
)

func (k OutcomeKind) String() string {
	if k == Matched {
		return "matched"
	}
	return "unmatched"
}

// Outcome describes what Dispatch did.
type Outcome struct {
	Kind          OutcomeKind
	ExpectationID string
	Candidates    []trace.CandidateResult
	// ResponseStarted is true once the action wrote a status line.
	ResponseStarted bool
	Status          int
}

// ResultOf maps a Dispatch error onto a response log result.
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrAborted):
		return ResultAborted
	default:
		return ResultFailed
	}
}
