package usecases

import (
	"context"
	"fmt"

	"github.com/sophialabs/mockexpect/internal/infrastructure/ports"
)

// Reloader re-reads persisted expectations.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Resetter drops cached state derived from expectation files.
type Resetter interface {
	Reset()
}

// ReloadExpectationsUseCase re-reads the expectation files and drops
// resolved actions, whose body files may have changed.
type ReloadExpectationsUseCase struct {
	store   Reloader
	actions Resetter
	logger  ports.Logger
}

// NewReloadExpectationsUseCase creates a new use case.
func NewReloadExpectationsUseCase(store Reloader, actions Resetter, logger ports.Logger) *ReloadExpectationsUseCase {
	return &ReloadExpectationsUseCase{store: store, actions: actions, logger: logger}
}

func (uc *ReloadExpectationsUseCase) Execute(ctx context.Context) error {
	if err := uc.store.Reload(ctx); err != nil {
		uc.logger.Error("reload failed, keeping previous expectations", "error", err)
		return fmt.Errorf("failed to reload expectations: %w", err)
	}
	uc.actions.Reset()
	uc.logger.Info("expectations reloaded")
	return nil
}
