package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sophialabs/mockexpect/internal/domain/expectation"
)

var _ expectation.Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory expectation.Store.
type MemoryStore struct {
	mu    sync.Mutex
	items []*expectation.Expectation

	// Now stamps CreateTime on Create. Defaults to time.Now.
	Now func() time.Time
	// Err, when set, is returned by every read.
	Err error
}

// NewMemoryStore creates a store holding clones of items.
func NewMemoryStore(items ...*expectation.Expectation) *MemoryStore {
	s := &MemoryStore{}
	for _, e := range items {
		s.items = append(s.items, e.Clone())
	}
	return s
}

func (s *MemoryStore) ListActive(_ context.Context, projectID string) ([]*expectation.Expectation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return expectation.SortActive(s.project(projectID)), nil
}

func (s *MemoryStore) List(_ context.Context, projectID string) ([]*expectation.Expectation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]*expectation.Expectation, 0)
	for _, e := range s.project(projectID) {
		out = append(out, e.Clone())
	}
	expectation.Sort(out)
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, projectID, id string) (*expectation.Expectation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	i := s.find(projectID, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s/%s", expectation.ErrNotFound, projectID, id)
	}
	return s.items[i].Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, e *expectation.Expectation) (*expectation.Expectation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := e.Validate(); err != nil {
		return nil, err
	}
	created := e.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if s.find(created.ProjectID, created.ID) >= 0 {
		return nil, fmt.Errorf("%w: %s/%s", expectation.ErrConflict, created.ProjectID, created.ID)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	created.CreateTime = now()
	s.items = append(s.items, created)
	return created.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, projectID, id string, p expectation.Patch) (*expectation.Expectation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(projectID, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s/%s", expectation.ErrNotFound, projectID, id)
	}
	updated, err := p.Apply(s.items[i])
	if err != nil {
		return nil, err
	}
	s.items[i] = updated
	return updated.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, projectID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(projectID, id)
	if i < 0 {
		return fmt.Errorf("%w: %s/%s", expectation.ErrNotFound, projectID, id)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

func (s *MemoryStore) Projects(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, e := range s.items {
		if !seen[e.ProjectID] {
			seen[e.ProjectID] = true
			out = append(out, e.ProjectID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) project(projectID string) []*expectation.Expectation {
	var out []*expectation.Expectation
	for _, e := range s.items {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) find(projectID, id string) int {
	for i, e := range s.items {
		if e.ProjectID == projectID && e.ID == id {
			return i
		}
	}
	return -1
}
