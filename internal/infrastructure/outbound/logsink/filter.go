package logsink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
)

var ErrInvalidQuery = errors.New("invalid log query")

// Condition operators.
const (
	OpEqual    = "equal"
	OpNotEqual = "not_equal"
	OpContains = "contains"
	OpGreater  = "greater"
	OpLess     = "less"
)

// Condition filters on one entry field. status compares numerically, other
// fields compare as strings.
type Condition struct {
	Field    string
	Operator string
	Value    string
}

// Query selects log entries. An empty ProjectID selects every project.
type Query struct {
	ProjectID  string
	Limit      int
	Conditions []Condition
}

// ParseCondition parses "field:operator:value". The value may contain colons.
func ParseCondition(s string) (Condition, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("%w: condition %q is not field:operator:value", ErrInvalidQuery, s)
	}
	return Condition{Field: parts[0], Operator: parts[1], Value: parts[2]}, nil
}

var fields = map[string]func(e *dispatch.LogEntry) string{
	"phase":          func(e *dispatch.LogEntry) string { return e.Phase },
	"result":         func(e *dispatch.LogEntry) string { return e.Result },
	"method":         func(e *dispatch.LogEntry) string { return e.Method },
	"path":           func(e *dispatch.LogEntry) string { return e.Path },
	"expectation_id": func(e *dispatch.LogEntry) string { return e.ExpectationID },
	"dispatch_id":    func(e *dispatch.LogEntry) string { return e.DispatchID },
	"error":          func(e *dispatch.LogEntry) string { return e.Error },
}

// Apply filters entries (oldest first) and keeps the q.Limit most recent
// matches.
func (q Query) Apply(entries []dispatch.LogEntry) ([]dispatch.LogEntry, error) {
	match, err := q.compile()
	if err != nil {
		return nil, err
	}
	out := make([]dispatch.LogEntry, 0, len(entries))
	for _, e := range entries {
		if match(e) {
			out = append(out, e)
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

func (q Query) compile() (func(dispatch.LogEntry) bool, error) {
	preds := make([]func(*dispatch.LogEntry) bool, 0, len(q.Conditions)+1)
	if q.ProjectID != "" {
		project := q.ProjectID
		preds = append(preds, func(e *dispatch.LogEntry) bool { return e.ProjectID == project })
	}
	for _, c := range q.Conditions {
		p, err := c.compile()
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return func(e dispatch.LogEntry) bool {
		for _, p := range preds {
			if !p(&e) {
				return false
			}
		}
		return true
	}, nil
}

func (c Condition) compile() (func(*dispatch.LogEntry) bool, error) {
	if c.Field == "status" {
		want, err := strconv.Atoi(c.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: status needs an integer, got %q", ErrInvalidQuery, c.Value)
		}
		cmp, err := intOperator(c.Operator, want)
		if err != nil {
			return nil, err
		}
		return func(e *dispatch.LogEntry) bool { return cmp(e.Status) }, nil
	}

	get, ok := fields[c.Field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidQuery, c.Field)
	}
	want := c.Value
	var cmp func(string) bool
	switch c.Operator {
	case OpEqual:
		cmp = func(v string) bool { return v == want }
	case OpNotEqual:
		cmp = func(v string) bool { return v != want }
	case OpContains:
		cmp = func(v string) bool { return strings.Contains(v, want) }
	case OpGreater:
		cmp = func(v string) bool { return v > want }
	case OpLess:
		cmp = func(v string) bool { return v < want }
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, c.Operator)
	}
	return func(e *dispatch.LogEntry) bool { return cmp(get(e)) }, nil
}

func intOperator(op string, want int) (func(int) bool, error) {
	switch op {
	case OpEqual:
		return func(v int) bool { return v == want }, nil
	case OpNotEqual:
		return func(v int) bool { return v != want }, nil
	case OpGreater:
		return func(v int) bool { return v > want }, nil
	case OpLess:
		return func(v int) bool { return v < want }, nil
	default:
		return nil, fmt.Errorf("%w: operator %q does not apply to status", ErrInvalidQuery, op)
	}
}
