package expectation

import (
	"errors"
	"fmt"
	"time"
)

// ErrMatcherNotFound and ErrActionNotFound are returned by the element-level
// editors when the referenced id does not exist.
var (
	ErrMatcherNotFound = errors.New("matcher not found")
	ErrActionNotFound  = errors.New("action not found")
)

// Patch is a partial update. Nil fields are left untouched. CreateTime,
// ID and ProjectID cannot be patched.
type Patch struct {
	Name     *string
	Activate *bool
	Priority *int
	Delay    *time.Duration
	Matchers *[]MatcherSpec
	Actions  *[]ActionSpec
}

// Apply returns a patched copy of e and validates the result.
func (p Patch) Apply(e *Expectation) (*Expectation, error) {
	out := e.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Activate != nil {
		out.Activate = *p.Activate
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Delay != nil {
		out.Delay = *p.Delay
	}
	if p.Matchers != nil {
		out.Matchers = append([]MatcherSpec(nil), (*p.Matchers)...)
	}
	if p.Actions != nil {
		out.Actions = make([]ActionSpec, len(*p.Actions))
		for i, a := range *p.Actions {
			out.Actions[i] = a.clone()
		}
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// AddMatcher appends m and returns the new matcher list.
func AddMatcher(e *Expectation, m MatcherSpec) []MatcherSpec {
	out := append([]MatcherSpec(nil), e.Matchers...)
	return append(out, m)
}

// ReplaceMatcher swaps the matcher with m.ID for m.
func ReplaceMatcher(e *Expectation, m MatcherSpec) ([]MatcherSpec, error) {
	out := append([]MatcherSpec(nil), e.Matchers...)
	for i := range out {
		if out[i].ID == m.ID {
			out[i] = m
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMatcherNotFound, m.ID)
}

// RemoveMatcher drops the matcher with the given id.
func RemoveMatcher(e *Expectation, id string) ([]MatcherSpec, error) {
	for i := range e.Matchers {
		if e.Matchers[i].ID == id {
			out := make([]MatcherSpec, 0, len(e.Matchers)-1)
			out = append(out, e.Matchers[:i]...)
			return append(out, e.Matchers[i+1:]...), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMatcherNotFound, id)
}

// AddAction appends a and returns the new action list.
func AddAction(e *Expectation, a ActionSpec) []ActionSpec {
	out := make([]ActionSpec, 0, len(e.Actions)+1)
	for _, existing := range e.Actions {
		out = append(out, existing.clone())
	}
	return append(out, a.clone())
}

// ReplaceAction swaps the action with a.ID for a.
func ReplaceAction(e *Expectation, a ActionSpec) ([]ActionSpec, error) {
	out := make([]ActionSpec, len(e.Actions))
	found := false
	for i, existing := range e.Actions {
		if existing.ID == a.ID {
			out[i] = a.clone()
			found = true
			continue
		}
		out[i] = existing.clone()
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, a.ID)
	}
	return out, nil
}

// RemoveAction drops the action with the given id.
func RemoveAction(e *Expectation, id string) ([]ActionSpec, error) {
	for i := range e.Actions {
		if e.Actions[i].ID == id {
			out := make([]ActionSpec, 0, len(e.Actions)-1)
			for j, a := range e.Actions {
				if j != i {
					out = append(out, a.clone())
				}
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrActionNotFound, id)
}
