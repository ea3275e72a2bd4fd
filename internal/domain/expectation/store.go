package expectation

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates an expectation was not found.
	ErrNotFound = errors.New("expectation not found")
	// ErrConflict indicates an expectation with the same id already exists.
	ErrConflict = errors.New("expectation already exists")
)

// Store is the port for reading and persisting expectations.
type Store interface {
	// ListActive returns the active expectations of a project in dispatch
	// order (see Sort). The returned values are copies; callers may not
	// observe later writes through them.
	ListActive(ctx context.Context, projectID string) ([]*Expectation, error)

	// List returns every expectation of a project, active or not, in dispatch order.
	List(ctx context.Context, projectID string) ([]*Expectation, error)

	// Get returns a single expectation or ErrNotFound.
	Get(ctx context.Context, projectID, id string) (*Expectation, error)

	// Create persists a new expectation. The store assigns ID (when empty)
	// and CreateTime.
	Create(ctx context.Context, e *Expectation) (*Expectation, error)

	// Update applies a partial update and returns the stored result.
	Update(ctx context.Context, projectID, id string, p Patch) (*Expectation, error)

	// Delete removes an expectation.
	Delete(ctx context.Context, projectID, id string) error

	// Projects lists the ids of all known projects.
	Projects(ctx context.Context) ([]string, error)
}
