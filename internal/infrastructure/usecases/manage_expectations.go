package usecases

import (
	"context"
	"fmt"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/domain/expectation"
	"github.com/sophialabs/mockexpect/internal/infrastructure/ports"
)

// ManageExpectationsUseCase is the admin surface over the store. Writes are
// checked against the capability registries first, so configuration that
// could never resolve is rejected with expectation.ErrInvalid instead of
// silently never matching.
type ManageExpectationsUseCase struct {
	store    expectation.Store
	matchers dispatch.MatcherRegistry
	actions  dispatch.ActionRegistry
	logger   ports.Logger
}

// NewManageExpectationsUseCase creates a new use case.
func NewManageExpectationsUseCase(
	store expectation.Store,
	matchers dispatch.MatcherRegistry,
	actions dispatch.ActionRegistry,
	logger ports.Logger,
) *ManageExpectationsUseCase {
	return &ManageExpectationsUseCase{
		store:    store,
		matchers: matchers,
		actions:  actions,
		logger:   logger,
	}
}

func (uc *ManageExpectationsUseCase) Projects(ctx context.Context) ([]string, error) {
	return uc.store.Projects(ctx)
}

func (uc *ManageExpectationsUseCase) List(ctx context.Context, projectID string) ([]*expectation.Expectation, error) {
	return uc.store.List(ctx, projectID)
}

func (uc *ManageExpectationsUseCase) Get(ctx context.Context, projectID, id string) (*expectation.Expectation, error) {
	return uc.store.Get(ctx, projectID, id)
}

func (uc *ManageExpectationsUseCase) Create(ctx context.Context, e *expectation.Expectation) (*expectation.Expectation, error) {
	if err := uc.checkCapabilities(e.Matchers, e.Actions); err != nil {
		return nil, err
	}
	created, err := uc.store.Create(ctx, e)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("expectation created", "project", created.ProjectID, "id", created.ID)
	return created, nil
}

func (uc *ManageExpectationsUseCase) Update(ctx context.Context, projectID, id string, p expectation.Patch) (*expectation.Expectation, error) {
	var matchers []expectation.MatcherSpec
	var actions []expectation.ActionSpec
	if p.Matchers != nil {
		matchers = *p.Matchers
	}
	if p.Actions != nil {
		actions = *p.Actions
	}
	if err := uc.checkCapabilities(matchers, actions); err != nil {
		return nil, err
	}
	updated, err := uc.store.Update(ctx, projectID, id, p)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("expectation updated", "project", projectID, "id", id)
	return updated, nil
}

func (uc *ManageExpectationsUseCase) Delete(ctx context.Context, projectID, id string) error {
	if err := uc.store.Delete(ctx, projectID, id); err != nil {
		return err
	}
	uc.logger.Info("expectation deleted", "project", projectID, "id", id)
	return nil
}

// AddMatcher appends a matcher to an expectation.
func (uc *ManageExpectationsUseCase) AddMatcher(ctx context.Context, projectID, id string, m expectation.MatcherSpec) (*expectation.Expectation, error) {
	return uc.editMatchers(ctx, projectID, id, func(e *expectation.Expectation) ([]expectation.MatcherSpec, error) {
		return expectation.AddMatcher(e, m), nil
	})
}

// UpdateMatcher replaces the matcher with m.ID.
func (uc *ManageExpectationsUseCase) UpdateMatcher(ctx context.Context, projectID, id string, m expectation.MatcherSpec) (*expectation.Expectation, error) {
	return uc.editMatchers(ctx, projectID, id, func(e *expectation.Expectation) ([]expectation.MatcherSpec, error) {
		return expectation.ReplaceMatcher(e, m)
	})
}

// RemoveMatcher deletes the matcher with matcherID.
func (uc *ManageExpectationsUseCase) RemoveMatcher(ctx context.Context, projectID, id, matcherID string) (*expectation.Expectation, error) {
	return uc.editMatchers(ctx, projectID, id, func(e *expectation.Expectation) ([]expectation.MatcherSpec, error) {
		return expectation.RemoveMatcher(e, matcherID)
	})
}

// AddAction appends an action to an expectation.
func (uc *ManageExpectationsUseCase) AddAction(ctx context.Context, projectID, id string, a expectation.ActionSpec) (*expectation.Expectation, error) {
	return uc.editActions(ctx, projectID, id, func(e *expectation.Expectation) ([]expectation.ActionSpec, error) {
		return expectation.AddAction(e, a), nil
	})
}

// UpdateAction replaces the action with a.ID.
func (uc *ManageExpectationsUseCase) UpdateAction(ctx context.Context, projectID, id string, a expectation.ActionSpec) (*expectation.Expectation, error) {
	return uc.editActions(ctx, projectID, id, func(e *expectation.Expectation) ([]expectation.ActionSpec, error) {
		return expectation.ReplaceAction(e, a)
	})
}

// RemoveAction deletes the action with actionID.
func (uc *ManageExpectationsUseCase) RemoveAction(ctx context.Context, projectID, id, actionID string) (*expectation.Expectation, error) {
	return uc.editActions(ctx, projectID, id, func(e *expectation.Expectation) ([]expectation.ActionSpec, error) {
		return expectation.RemoveAction(e, actionID)
	})
}

// editMatchers and editActions read, edit and write back in two steps; a
// concurrent edit of the same list in between is overwritten.
func (uc *ManageExpectationsUseCase) editMatchers(ctx context.Context, projectID, id string, edit func(*expectation.Expectation) ([]expectation.MatcherSpec, error)) (*expectation.Expectation, error) {
	current, err := uc.store.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	matchers, err := edit(current)
	if err != nil {
		return nil, err
	}
	return uc.Update(ctx, projectID, id, expectation.Patch{Matchers: &matchers})
}

func (uc *ManageExpectationsUseCase) editActions(ctx context.Context, projectID, id string, edit func(*expectation.Expectation) ([]expectation.ActionSpec, error)) (*expectation.Expectation, error) {
	current, err := uc.store.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	actions, err := edit(current)
	if err != nil {
		return nil, err
	}
	return uc.Update(ctx, projectID, id, expectation.Patch{Actions: &actions})
}

func (uc *ManageExpectationsUseCase) checkCapabilities(matchers []expectation.MatcherSpec, actions []expectation.ActionSpec) error {
	for i, m := range matchers {
		if _, err := uc.matchers.Resolve(m); err != nil {
			return fmt.Errorf("%w: matcher %d: %w", expectation.ErrInvalid, i, err)
		}
	}
	for i, a := range actions {
		if _, err := uc.actions.Resolve(a, 0); err != nil {
			return fmt.Errorf("%w: action %d: %w", expectation.ErrInvalid, i, err)
		}
	}
	return nil
}
