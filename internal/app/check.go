package app

import (
	"context"
	"fmt"
	"io"

	"github.com/sophialabs/mockexpect/internal/domain/expectation"
	"github.com/sophialabs/mockexpect/internal/infrastructure/capability/action"
	"github.com/sophialabs/mockexpect/internal/infrastructure/capability/matcher"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/logging"
)

// Problem is a stored matcher or action that cannot be resolved.
type Problem struct {
	ProjectID     string
	ExpectationID string
	Element       string // "matcher <id>" or "action <id>"
	Err           error
}

func (p Problem) String() string {
	return fmt.Sprintf("%s/%s %s: %v", p.ProjectID, p.ExpectationID, p.Element, p.Err)
}

// CheckResult summarises a dry run over the expectation files.
type CheckResult struct {
	Projects     int
	Expectations int
	Problems     []Problem
}

// Check loads every expectation under cfg.RootDir and resolves each matcher
// and action without serving traffic. File-level errors are returned;
// unresolvable elements are reported as problems.
func Check(ctx context.Context, cfg Config, logOut io.Writer) (CheckResult, error) {
	logger := logging.NewText(logOut, cfg.LogLevel)
	clk := clock.New()

	store, err := filesystem.NewStore(cfg.RootDir, clk, logger)
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to load expectations: %w", err)
	}
	matchers := matcher.NewRegistry(0)
	actions := action.NewRegistry(action.Options{
		Clock:         clk,
		BodyRoot:      store.RootDir(),
		DefaultEngine: cfg.DefaultEngine,
	})

	projects, err := store.Projects(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	res := CheckResult{Projects: len(projects)}
	for _, project := range projects {
		list, err := store.List(ctx, project)
		if err != nil {
			return res, err
		}
		for _, e := range list {
			res.Expectations++
			res.Problems = append(res.Problems, checkExpectation(e, matchers, actions)...)
		}
	}
	return res, nil
}

func checkExpectation(e *expectation.Expectation, matchers *matcher.Registry, actions *action.Registry) []Problem {
	var problems []Problem
	for _, m := range e.Matchers {
		if _, err := matchers.Resolve(m); err != nil {
			problems = append(problems, Problem{ProjectID: e.ProjectID, ExpectationID: e.ID, Element: "matcher " + m.ID, Err: err})
		}
	}
	for _, a := range e.Actions {
		if _, err := actions.Resolve(a, e.Delay); err != nil {
			problems = append(problems, Problem{ProjectID: e.ProjectID, ExpectationID: e.ID, Element: "action " + a.ID, Err: err})
		}
	}
	return problems
}
